// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azuretesting provides test doubles for the azcore transport and
// credential interfaces, so clients can be exercised without a network.
package azuretesting

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/juju/errors"
)

// Body implements io.ReadCloser over an in-memory buffer, and can be
// rewound for repeated responses.
type Body struct {
	src    []byte
	reader io.Reader
}

// NewBody returns a response body with the given content.
func NewBody(content string) *Body {
	b := &Body{src: []byte(content)}
	b.reset()
	return b
}

func (b *Body) reset() {
	b.reader = bytes.NewReader(b.src)
}

// Read implements io.Reader.
func (b *Body) Read(p []byte) (int, error) {
	return b.reader.Read(p)
}

// Close implements io.Closer.
func (b *Body) Close() error {
	return nil
}

// NewResponseWithContent returns a 200 response carrying the given JSON
// content.
func NewResponseWithContent(content string) *http.Response {
	return NewResponseWithBodyAndStatus(NewBody(content), http.StatusOK, "OK")
}

// NewResponseWithStatus returns an empty response with the given status.
func NewResponseWithStatus(status string, code int) *http.Response {
	return NewResponseWithBodyAndStatus(NewBody(""), code, status)
}

// NewResponseWithBodyAndStatus returns a response with the given body and
// status.
func NewResponseWithBodyAndStatus(body *Body, code int, status string) *http.Response {
	return &http.Response{
		Status:        status,
		StatusCode:    code,
		Body:          body,
		ContentLength: int64(len(body.src)),
		Header:        http.Header{"Content-Type": []string{"application/json"}},
	}
}

type mockResponse struct {
	resp    *http.Response
	repeats int
	err     error
}

// MockSender implements policy.Transporter, replaying a queue of canned
// responses. A request arriving with an empty queue is an error.
type MockSender struct {
	mu        sync.Mutex
	responses []mockResponse

	// PathPattern, when set, is matched against each request path; a
	// mismatch fails the request.
	PathPattern string

	// Requests records every request seen, for assertions.
	Requests []*http.Request
}

// AppendResponse adds a response to the end of the queue.
func (s *MockSender) AppendResponse(resp *http.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, mockResponse{resp: resp, repeats: 1})
}

// AppendAndRepeatResponse adds a response replayed n times.
func (s *MockSender) AppendAndRepeatResponse(resp *http.Response, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, mockResponse{resp: resp, repeats: n})
}

// AppendError adds a transport error to the end of the queue.
func (s *MockSender) AppendError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, mockResponse{err: err, repeats: 1})
}

// Do implements policy.Transporter.
func (s *MockSender) Do(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.PathPattern != "" && req.URL.Path != s.PathPattern {
		return nil, fmt.Errorf("request path %q did not match %q", req.URL.Path, s.PathPattern)
	}
	if len(s.responses) == 0 {
		return nil, errors.Errorf("no response for %s %s", req.Method, req.URL)
	}
	next := &s.responses[0]
	if next.err != nil {
		s.responses = s.responses[1:]
		return nil, next.err
	}
	resp := next.resp
	if body, ok := resp.Body.(*Body); ok {
		body.reset()
	}
	next.repeats--
	if next.repeats <= 0 {
		s.responses = s.responses[1:]
	}
	resp.Request = req
	return resp, nil
}

// Senders is a stack of senders: each request is given to the sender at
// the head of the queue, which is then popped when exhausted.
type Senders []*MockSender

// Do implements policy.Transporter.
func (s *Senders) Do(req *http.Request) (*http.Response, error) {
	if len(*s) == 0 {
		return nil, errors.Errorf("no sender for %s %s", req.Method, req.URL)
	}
	sender := (*s)[0]
	resp, err := sender.Do(req)
	sender.mu.Lock()
	exhausted := len(sender.responses) == 0
	sender.mu.Unlock()
	if exhausted {
		*s = (*s)[1:]
	}
	return resp, err
}
