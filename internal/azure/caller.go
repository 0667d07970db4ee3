// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/juju/errors"
	"github.com/juju/retry"
)

const (
	// managementEndpoint is the ARM endpoint for the public cloud. The
	// lab environments only ever run there.
	managementEndpoint = "https://management.azure.com"
	managementScope    = managementEndpoint + "/.default"

	moduleName    = "seclab"
	moduleVersion = "v1.0.0"

	// Rate limited calls are retried a fixed number of times with a flat
	// delay, mirroring what the original scripts did around eventual
	// consistency hiccups.
	retryAttempts = 4
	retryDelay    = 5 * time.Second
)

// Caller issues raw management plane requests for resource providers that
// have no first-class client here (Microsoft.Security JIT policies and
// pricings, Microsoft.SecurityInsights). It is the `az rest` of this tool.
type Caller struct {
	session *Session
	pl      runtime.Pipeline
}

// Caller builds a Caller sharing the session's credential and transport.
func (s *Session) Caller() *Caller {
	authPolicy := runtime.NewBearerTokenPolicy(s.credential, []string{managementScope}, nil)
	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{authPolicy},
	}
	pl := runtime.NewPipeline(moduleName, moduleVersion, plOpts, &s.clientOptions.ClientOptions)
	return &Caller{session: s, pl: pl}
}

// SubscriptionPath prefixes path elements with the session's subscription
// scope.
func (c *Caller) SubscriptionPath(parts ...string) string {
	all := append([]string{"subscriptions", c.session.subscriptionID}, parts...)
	return "/" + strings.Join(all, "/")
}

// Get issues a GET for path at the given api-version, decoding the JSON
// response into out when out is non-nil.
func (c *Caller) Get(ctx context.Context, path, apiVersion string, out interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodGet, path, apiVersion, nil, out))
}

// Put issues a PUT with the given body, decoding the response into out when
// out is non-nil.
func (c *Caller) Put(ctx context.Context, path, apiVersion string, body, out interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodPut, path, apiVersion, body, out))
}

// Post issues a POST with the given body, decoding the response into out
// when out is non-nil.
func (c *Caller) Post(ctx context.Context, path, apiVersion string, body, out interface{}) error {
	return errors.Trace(c.do(ctx, http.MethodPost, path, apiVersion, body, out))
}

// Delete issues a DELETE for path. Deleting something already gone is not
// an error.
func (c *Caller) Delete(ctx context.Context, path, apiVersion string) error {
	err := c.do(ctx, http.MethodDelete, path, apiVersion, nil, nil)
	if IsNotFoundResponse(errors.Cause(err)) {
		return nil
	}
	return errors.Trace(err)
}

func (c *Caller) do(ctx context.Context, method, path, apiVersion string, body, out interface{}) error {
	var lastStatus int
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			resp, err := c.send(ctx, method, path, apiVersion, body)
			if err != nil {
				return err
			}
			lastStatus = resp.StatusCode
			if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusNoContent) {
				return runtime.NewResponseError(resp)
			}
			if out != nil && resp.StatusCode != http.StatusNoContent {
				return runtime.UnmarshalAsJSON(resp, out)
			}
			return nil
		},
		IsFatalError: func(err error) bool {
			return lastStatus != http.StatusTooManyRequests
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("%s %s attempt %d: %v", method, path, attempt, err)
		},
		Attempts: retryAttempts,
		Delay:    retryDelay,
		Clock:    c.session.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return maybeCredentialError(maybeNotFoundError(err))
	}
	return nil
}

func (c *Caller) send(ctx context.Context, method, path, apiVersion string, body interface{}) (*http.Response, error) {
	req, err := runtime.NewRequest(ctx, method, runtime.JoinPaths(managementEndpoint, path))
	if err != nil {
		return nil, errors.Trace(err)
	}
	query := url.Values{"api-version": []string{apiVersion}}
	req.Raw().URL.RawQuery = query.Encode()
	if body != nil {
		if err := runtime.MarshalAsJSON(req, body); err != nil {
			return nil, errors.Trace(err)
		}
	}
	resp, err := c.pl.Do(req)
	return resp, errors.Trace(err)
}
