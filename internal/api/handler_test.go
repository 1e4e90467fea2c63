package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHandler() *Handler {
	return NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	testHandler().Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestPageParams(t *testing.T) {
	tests := []struct {
		url    string
		limit  int
		offset int
	}{
		{"/v1/repos", defaultPageSize, 0},
		{"/v1/repos?limit=10", 10, 0},
		{"/v1/repos?limit=10&offset=20", 10, 20},
		{"/v1/repos?limit=0", defaultPageSize, 0},
		{"/v1/repos?limit=-5&offset=-5", defaultPageSize, 0},
		{"/v1/repos?limit=9999", defaultPageSize, 0},
		{"/v1/repos?limit=abc", defaultPageSize, 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.url, nil)
		limit, offset := pageParams(req)
		assert.Equal(t, tt.limit, limit, tt.url)
		assert.Equal(t, tt.offset, offset, tt.url)
	}
}

func TestRespondWithError(t *testing.T) {
	rec := httptest.NewRecorder()
	testHandler().respondWithError(rec, http.StatusNotFound, "repository not mirrored")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"repository not mirrored"}`, rec.Body.String())
}

func TestSearchRequiresQuery(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	testHandler().Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
