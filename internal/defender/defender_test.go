// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package defender_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure/azuretesting"
	"github.com/seclab/seclab/internal/defender"
)

type defenderSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&defenderSuite{})

func (s *defenderSuite) TestPlans(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{
		"value": [
			{"name": "VirtualMachines", "properties": {"pricingTier": "Standard", "subPlan": "P2"}},
			{"name": "StorageAccounts", "properties": {"pricingTier": "Free"}}
		]
	}`))
	client := defender.NewClient(newSession(c, sender))

	plans, err := client.Plans(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(plans, jc.DeepEquals, []defender.Plan{
		{Name: "VirtualMachines", Tier: "Standard", SubPlan: "P2"},
		{Name: "StorageAccounts", Tier: "Free"},
	})

	c.Assert(sender.Requests, gc.HasLen, 1)
	req := sender.Requests[0]
	c.Assert(req.Method, gc.Equals, "GET")
	c.Assert(req.URL.Path, gc.Equals, "/subscriptions/"+fakeSubscription+"/providers/Microsoft.Security/pricings")
	c.Assert(req.URL.Query().Get("api-version"), gc.Equals, "2024-01-01")
}

func (s *defenderSuite) TestEnablePlan(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Free"}}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Standard"}}`))
	client := defender.NewClient(newSession(c, sender))

	enabled, err := client.EnablePlan(context.Background(), "VirtualMachines")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(enabled, jc.IsTrue)

	c.Assert(sender.Requests, gc.HasLen, 2)
	put := sender.Requests[1]
	c.Assert(put.Method, gc.Equals, "PUT")
	c.Assert(put.URL.Path, gc.Equals, "/subscriptions/"+fakeSubscription+"/providers/Microsoft.Security/pricings/VirtualMachines")

	var body map[string]interface{}
	data, err := io.ReadAll(put.Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &body)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(body, jc.DeepEquals, map[string]interface{}{
		"properties": map[string]interface{}{"pricingTier": "Standard"},
	})
}

func (s *defenderSuite) TestEnablePlanWaitsForTier(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Free"}}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Free"}}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Free"}}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Standard"}}`))
	client := defender.NewClient(newSession(c, sender))

	enabled, err := client.EnablePlan(context.Background(), "VirtualMachines")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(enabled, jc.IsTrue)

	c.Assert(sender.Requests, gc.HasLen, 4)
	c.Assert(sender.Requests[1].Method, gc.Equals, "PUT")
	c.Assert(sender.Requests[2].Method, gc.Equals, "GET")
	c.Assert(sender.Requests[3].Method, gc.Equals, "GET")
}

func (s *defenderSuite) TestEnablePlanAlreadyStandard(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Standard"}}`))
	client := defender.NewClient(newSession(c, sender))

	enabled, err := client.EnablePlan(context.Background(), "VirtualMachines")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(enabled, jc.IsFalse)
	c.Assert(sender.Requests, gc.HasLen, 1)
}

func (s *defenderSuite) TestEnablePlanRetriesRateLimit(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("429 Too Many Requests", http.StatusTooManyRequests))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "VirtualMachines", "properties": {"pricingTier": "Standard"}}`))
	client := defender.NewClient(newSession(c, sender))

	enabled, err := client.EnablePlan(context.Background(), "VirtualMachines")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(enabled, jc.IsFalse)
	c.Assert(sender.Requests, gc.HasLen, 2)
}

func (s *defenderSuite) TestEnablePlanError(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("500 Internal Server Error", http.StatusInternalServerError))
	client := defender.NewClient(newSession(c, sender))

	_, err := client.EnablePlan(context.Background(), "VirtualMachines")
	c.Assert(err, gc.ErrorMatches, `(?s)reading Defender plan "VirtualMachines": .*500.*`)
}
