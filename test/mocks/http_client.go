package mocks

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// RoundTripFunc adapts a function to http.RoundTripper
type RoundTripFunc func(req *http.Request) (*http.Response, error)

// RoundTrip implements the http.RoundTripper interface
func (f RoundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// NewHTTPClientMock creates an HTTP client served by fn
func NewHTTPClientMock(fn RoundTripFunc) *http.Client {
	return &http.Client{Transport: fn}
}

// NewHTTPResponse builds a response with the given status code and body
func NewHTTPResponse(statusCode int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

// HTTPClientWithError returns a client whose every request fails with err
func HTTPClientWithError(err error) *http.Client {
	return NewHTTPClientMock(func(*http.Request) (*http.Response, error) {
		return nil, err
	})
}

// HTTPClientWithStatusMock returns a client that always answers with status
func HTTPClientWithStatusMock(status int, body []byte) *http.Client {
	return NewHTTPClientMock(func(*http.Request) (*http.Response, error) {
		return NewHTTPResponse(status, body), nil
	})
}

// RequestRecorder answers every request with a fixed status and keeps the
// requests it saw, bodies included.
type RequestRecorder struct {
	Status int

	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
}

// Client returns an HTTP client backed by the recorder
func (r *RequestRecorder) Client() *http.Client {
	return NewHTTPClientMock(func(req *http.Request) (*http.Response, error) {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}

		r.mu.Lock()
		r.requests = append(r.requests, req)
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()

		return NewHTTPResponse(r.Status, nil), nil
	})
}

// Last returns the most recent request and its body, or nil when none arrived
func (r *RequestRecorder) Last() (*http.Request, []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.requests) == 0 {
		return nil, nil
	}

	return r.requests[len(r.requests)-1], r.bodies[len(r.bodies)-1]
}
