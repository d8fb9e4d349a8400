// Package helper provides shared test utilities
package helper

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// TestServer wraps httptest.Server and counts the requests it receives
type TestServer struct {
	*httptest.Server
	URL      string
	requests atomic.Int64
}

// NewTestServer starts a server for handler that is closed with the test
func NewTestServer(t *testing.T, handler http.Handler) *TestServer {
	t.Helper()

	srv := &TestServer{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	srv.URL = srv.Server.URL

	t.Cleanup(srv.Close)

	return srv
}

// Requests returns how many requests reached the server so far
func (s *TestServer) Requests() int64 {
	return s.requests.Load()
}
