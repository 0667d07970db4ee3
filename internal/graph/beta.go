// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package graph

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

// betaEndpoint is the Graph beta endpoint. The compliance surface
// (retention labels, sensitive information types, EDM schemas, DLP) has
// no v1.0 or SDK coverage, so those calls go through here raw.
const betaEndpoint = "https://graph.microsoft.com/beta"

const (
	rateLimitAttempts = 4
	rateLimitDelay    = 5 * time.Second
)

// BetaCaller issues raw requests against the Graph beta endpoint.
type BetaCaller struct {
	pl    runtime.Pipeline
	clock clock.Clock
}

// NewBetaCaller builds a BetaCaller sharing the session credential.
// clientOptions carries the transport override in tests.
func NewBetaCaller(cred azcore.TokenCredential, clientOptions policy.ClientOptions, clk clock.Clock) *BetaCaller {
	authPolicy := runtime.NewBearerTokenPolicy(cred, []string{Scope}, nil)
	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{authPolicy},
	}
	return &BetaCaller{
		pl:    runtime.NewPipeline("seclab", "v1.0.0", plOpts, &clientOptions),
		clock: clk,
	}
}

// Get issues a GET for path, decoding the JSON response into out.
func (c *BetaCaller) Get(ctx context.Context, path string, out interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodGet, path, nil, out))
}

// Post issues a POST with the given body, decoding the response into out
// when out is non-nil.
func (c *BetaCaller) Post(ctx context.Context, path string, body, out interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodPost, path, body, out))
}

// Patch issues a PATCH with the given body.
func (c *BetaCaller) Patch(ctx context.Context, path string, body interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodPatch, path, body, nil))
}

// Delete issues a DELETE for path.
func (c *BetaCaller) Delete(ctx context.Context, path string) error {
	return errors.Trace(c.do(ctx, http.MethodDelete, path, nil, nil))
}

func (c *BetaCaller) do(ctx context.Context, method, path string, body, out interface{}) error {
	var lastStatus int
	return retry.Call(retry.CallArgs{
		Func: func() error {
			req, err := runtime.NewRequest(ctx, method, runtime.JoinPaths(betaEndpoint, path))
			if err != nil {
				return errors.Trace(err)
			}
			if body != nil {
				if err := runtime.MarshalAsJSON(req, body); err != nil {
					return errors.Trace(err)
				}
			}
			resp, err := c.pl.Do(req)
			if err != nil {
				return errors.Trace(err)
			}
			lastStatus = resp.StatusCode
			if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent) {
				return normalizeResponseError(resp)
			}
			if out != nil && resp.StatusCode != http.StatusNoContent {
				return errors.Trace(runtime.UnmarshalAsJSON(resp, out))
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return lastStatus != http.StatusTooManyRequests
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("%s %s attempt %d: %v", method, path, attempt, err)
		},
		Attempts: rateLimitAttempts,
		Delay:    rateLimitDelay,
		Clock:    c.clock,
		Stop:     ctx.Done(),
	})
}

func normalizeResponseError(resp *http.Response) error {
	err := runtime.NewResponseError(resp)
	var respErr *azcore.ResponseError
	if !stderrors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return errors.NewNotFound(err, "")
	case http.StatusConflict:
		return errors.NewAlreadyExists(err, "")
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewUnauthorized(err, "Graph request denied, check the signed-in principal's directory permissions")
	}
	return err
}
