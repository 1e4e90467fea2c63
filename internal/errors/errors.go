package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRepoFormat is returned when a repository argument is not in
// 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// GitHubError is a terminal API failure: a non-2xx response whose body
// carried a message. It is fatal to the current resource's ingestion.
type GitHubError struct {
	Message    string
	StatusCode int
}

func (e *GitHubError) Error() string {
	return fmt.Sprintf("github: %s (HTTP %d)", e.Message, e.StatusCode)
}

// RepositoryEmptyError is the one API failure that is not terminal: listing
// commits or tags of a freshly created repository. Callers treat it as a
// normal empty stream.
type RepositoryEmptyError struct {
	GitHubError
}

// NewGitHubError classifies an API error message by status and content.
func NewGitHubError(message string, statusCode int) error {
	ghe := GitHubError{Message: message, StatusCode: statusCode}
	if strings.Contains(strings.ToLower(message), "git repository is empty") {
		return &RepositoryEmptyError{GitHubError: ghe}
	}
	return &ghe
}

// IsRepositoryEmpty reports whether err is the empty-repository condition.
func IsRepositoryEmpty(err error) bool {
	var empty *RepositoryEmptyError
	return errors.As(err, &empty)
}

// ShapeError reports a record missing a required nested field. It indicates
// an upstream schema change and aborts the record rather than guessing.
type ShapeError struct {
	Resource string
	Field    string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s record is missing required field %q", e.Resource, e.Field)
}
