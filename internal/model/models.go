package model

import (
	"bytes"
	"encoding/json"
)

// Record is one decoded JSON object as returned by the GitHub API. Numbers
// are carried as json.Number so 64-bit identifiers survive decoding intact;
// nested objects are map[string]any and arrays are []any.
type Record map[string]any

// DecodeRecord parses a single JSON object into a Record.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeRecords parses a JSON array of objects.
func DecodeRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var recs []Record
	if err := dec.Decode(&recs); err != nil {
		return nil, err
	}
	return recs, nil
}

// Int returns the named field as an int64. The second return is false when
// the field is absent, null, or not an integral number.
func (r Record) Int(key string) (int64, bool) {
	n, ok := r[key].(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// String returns the named field as a string, or "" when absent or null.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Object returns a nested object field, or nil when absent or null.
func (r Record) Object(key string) Record {
	m, ok := r[key].(map[string]any)
	if !ok {
		return nil
	}
	return Record(m)
}

// Array returns an array field, or nil when absent or null.
func (r Record) Array(key string) []any {
	a, _ := r[key].([]any)
	return a
}

// Clone returns a shallow copy. Save operations mutate their working copy
// rather than the caller's record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Repository is the subset of repo columns the query API reads back.
type Repository struct {
	ID              int64   `json:"id"`
	FullName        string  `json:"full_name"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	HTMLURL         *string `json:"html_url"`
	Owner           *int64  `json:"owner"`
	License         *string `json:"license"`
	StargazersCount *int64  `json:"stargazers_count"`
	CreatedAt       *string `json:"created_at"`
	UpdatedAt       *string `json:"updated_at"`
}

// Issue is the subset of issue columns the query API reads back.
type Issue struct {
	ID        int64   `json:"id"`
	Number    int64   `json:"number"`
	Title     string  `json:"title"`
	State     *string `json:"state"`
	Type      string  `json:"type"`
	User      *int64  `json:"user"`
	Repo      int64   `json:"repo"`
	CreatedAt *string `json:"created_at"`
}

// Commit is the subset of commit columns the query API reads back.
type Commit struct {
	SHA           string  `json:"sha"`
	Message       *string `json:"message"`
	AuthorDate    *string `json:"author_date"`
	CommitterDate *string `json:"committer_date"`
	Author        *int64  `json:"author"`
	Repo          *int64  `json:"repo"`
}

// Release is the subset of release columns the query API reads back.
type Release struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name"`
	TagName     *string `json:"tag_name"`
	PublishedAt *string `json:"published_at"`
	Repo        *int64  `json:"repo"`
}

// SearchHit is one row from an FTS projection lookup.
type SearchHit struct {
	Table string  `json:"table"`
	ID    string  `json:"id"`
	Rank  float64 `json:"rank"`
}
