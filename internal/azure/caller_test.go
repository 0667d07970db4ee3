// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package azure_test

import (
	"context"
	"net/http"
	stdtesting "testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/azure/azuretesting"
)

func TestPackage(t *stdtesting.T) {
	gc.TestingT(t)
}

type callerSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&callerSuite{})

const fakeSubscription = "11111111-1111-1111-1111-111111111111"

func (s *callerSuite) newCaller(c *gc.C, sender policy.Transporter) *azure.Caller {
	session, err := azure.NewSession(azure.SessionParams{
		SubscriptionID: fakeSubscription,
		Credential:     &azuretesting.FakeCredential{},
		ClientOptions: arm.ClientOptions{
			ClientOptions: policy.ClientOptions{
				Transport: sender,
				Retry:     policy.RetryOptions{MaxRetries: -1},
			},
		},
		Clock: testclock.NewDilatedWallClock(time.Millisecond),
	})
	c.Assert(err, jc.ErrorIsNil)
	return session.Caller()
}

func (s *callerSuite) TestGet(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": 42}`))
	caller := s.newCaller(c, sender)

	var out struct {
		Value int `json:"value"`
	}
	err := caller.Get(context.Background(), caller.SubscriptionPath("providers", "Testing"), "2024-01-01", &out)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(out.Value, gc.Equals, 42)

	c.Assert(sender.Requests, gc.HasLen, 1)
	req := sender.Requests[0]
	c.Assert(req.URL.Host, gc.Equals, "management.azure.com")
	c.Assert(req.URL.Path, gc.Equals, "/subscriptions/"+fakeSubscription+"/providers/Testing")
	c.Assert(req.URL.Query().Get("api-version"), gc.Equals, "2024-01-01")
	c.Assert(req.Header.Get("Authorization"), gc.Equals, "Bearer FakeToken")
}

func (s *callerSuite) TestRetriesRateLimitOnly(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendAndRepeatResponse(azuretesting.NewResponseWithStatus("429 Too Many Requests", http.StatusTooManyRequests), 2)
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{}`))
	caller := s.newCaller(c, sender)

	err := caller.Get(context.Background(), "/path", "2024-01-01", nil)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(sender.Requests, gc.HasLen, 3)
}

func (s *callerSuite) TestRateLimitGivesUp(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendAndRepeatResponse(azuretesting.NewResponseWithStatus("429 Too Many Requests", http.StatusTooManyRequests), 10)
	caller := s.newCaller(c, sender)

	err := caller.Get(context.Background(), "/path", "2024-01-01", nil)
	c.Assert(err, gc.NotNil)
	// 4 attempts, no more.
	c.Assert(sender.Requests, gc.HasLen, 4)
}

func (s *callerSuite) TestNoRetryOnServerError(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("500 Internal Server Error", http.StatusInternalServerError))
	caller := s.newCaller(c, sender)

	err := caller.Get(context.Background(), "/path", "2024-01-01", nil)
	c.Assert(err, gc.NotNil)
	c.Assert(sender.Requests, gc.HasLen, 1)
}

func (s *callerSuite) TestNotFound(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("404 Not Found", http.StatusNotFound))
	caller := s.newCaller(c, sender)

	err := caller.Get(context.Background(), "/path", "2024-01-01", nil)
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *callerSuite) TestDeleteSwallowsNotFound(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("404 Not Found", http.StatusNotFound))
	caller := s.newCaller(c, sender)

	err := caller.Delete(context.Background(), "/path", "2024-01-01")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *callerSuite) TestCredentialRejected(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("403 Forbidden", http.StatusForbidden))
	caller := s.newCaller(c, sender)

	err := caller.Get(context.Background(), "/path", "2024-01-01", nil)
	c.Assert(err, jc.ErrorIs, errors.Unauthorized)
}
