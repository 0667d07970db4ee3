// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package graphtesting provides a canned-response kiota request adapter,
// so Graph-backed operations can be tested without a network the way the
// azuretesting senders cover the management plane.
package graphtesting

import (
	"context"
	"regexp"

	"github.com/juju/errors"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	"github.com/microsoft/kiota-abstractions-go/authentication"
	"github.com/microsoft/kiota-abstractions-go/serialization"
	nethttplibrary "github.com/microsoft/kiota-http-go"
)

// RequestResult is one canned response. A request consuming it must match
// PathPattern against its URL template and carry the given path
// parameters.
type RequestResult struct {
	PathPattern string
	Params      map[string]string
	Result      serialization.Parsable
	Err         error
}

// MockRequestAdapter replays canned results in order, failing requests
// that do not match the expectations recorded with them.
type MockRequestAdapter struct {
	*nethttplibrary.NetHttpRequestAdapter

	Results []RequestResult
}

// NewMockRequestAdapter returns an adapter ready for canned results.
func NewMockRequestAdapter() (*MockRequestAdapter, error) {
	ra, err := nethttplibrary.NewNetHttpRequestAdapter(&authentication.AnonymousAuthenticationProvider{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &MockRequestAdapter{NetHttpRequestAdapter: ra}, nil
}

func (m *MockRequestAdapter) nextResult(requestInfo *abstractions.RequestInformation) (RequestResult, error) {
	if len(m.Results) == 0 {
		return RequestResult{}, errors.Errorf("no results for %q", requestInfo.UrlTemplate)
	}
	res := m.Results[0]
	m.Results = m.Results[1:]
	if res.PathPattern != "" {
		matched, err := regexp.MatchString(res.PathPattern, requestInfo.UrlTemplate)
		if err != nil {
			return RequestResult{}, err
		}
		if !matched {
			return RequestResult{}, errors.Errorf(
				"request path %q did not match pattern %q",
				requestInfo.UrlTemplate, res.PathPattern,
			)
		}
	}
	for k, v := range res.Params {
		if val := requestInfo.PathParameters[k]; val != v {
			return RequestResult{}, errors.Errorf(
				"request path parameter %q=%q did not match parameter %q",
				k, v, val,
			)
		}
	}
	return res, nil
}

// Send implements abstractions.RequestAdapter.
func (m *MockRequestAdapter) Send(ctx context.Context, requestInfo *abstractions.RequestInformation, constructor serialization.ParsableFactory, errorMappings abstractions.ErrorMappings) (serialization.Parsable, error) {
	res, err := m.nextResult(requestInfo)
	if err != nil {
		return nil, err
	}
	return res.Result, res.Err
}

// SendNoContent implements abstractions.RequestAdapter for requests with
// empty responses: deletes and $ref writes.
func (m *MockRequestAdapter) SendNoContent(ctx context.Context, requestInfo *abstractions.RequestInformation, errorMappings abstractions.ErrorMappings) error {
	res, err := m.nextResult(requestInfo)
	if err != nil {
		return err
	}
	return res.Err
}
