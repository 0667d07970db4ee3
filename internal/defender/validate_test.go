// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package defender_test

import (
	"context"
	"time"

	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure/azuretesting"
	"github.com/seclab/seclab/internal/defender"
	"github.com/seclab/seclab/internal/report"
)

type validateSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&validateSuite{})

const (
	pricingsResponse = `{
		"value": [
			{"name": "VirtualMachines", "properties": {"pricingTier": "Standard"}}
		]
	}`

	// The policy ID casing deliberately differs from the VM list below.
	jitPoliciesResponse = `{
		"value": [
			{
				"name": "vm1",
				"location": "eastus",
				"properties": {
					"virtualMachines": [
						{
							"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/LAB-RG/providers/Microsoft.Compute/virtualMachines/VM1",
							"ports": [{"number": 22, "protocol": "*", "allowedSourceAddressPrefix": "*", "maxRequestAccessDuration": "PT3H"}]
						}
					]
				}
			}
		]
	}`

	vmListResponse = `{
		"value": [
			{
				"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/lab-rg/providers/Microsoft.Compute/virtualMachines/vm1",
				"name": "vm1",
				"location": "eastus",
				"properties": {
					"provisioningState": "Succeeded",
					"networkProfile": {"networkInterfaces": [
						{"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/lab-rg/providers/Microsoft.Network/networkInterfaces/nic1"}
					]}
				}
			},
			{
				"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/lab-rg/providers/Microsoft.Compute/virtualMachines/vm2",
				"name": "vm2",
				"location": "eastus",
				"properties": {
					"provisioningState": "Succeeded",
					"networkProfile": {"networkInterfaces": [
						{"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/lab-rg/providers/Microsoft.Network/networkInterfaces/nic2"}
					]}
				}
			}
		]
	}`

	runningView     = `{"statuses": [{"code": "ProvisioningState/succeeded"}, {"code": "PowerState/running"}]}`
	deallocatedView = `{"statuses": [{"code": "PowerState/deallocated"}]}`

	guardedNIC = `{
		"name": "nic1",
		"properties": {"networkSecurityGroup": {"id": "/subscriptions/22222222-2222-2222-2222-222222222222/resourceGroups/lab-rg/providers/Microsoft.Network/networkSecurityGroups/lab-nsg"}}
	}`
	bareNIC = `{"name": "nic2", "properties": {}}`
)

func (s *validateSuite) TestValidateVMs(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(pricingsResponse))
	sender.AppendResponse(azuretesting.NewResponseWithContent(jitPoliciesResponse))
	sender.AppendResponse(azuretesting.NewResponseWithContent(vmListResponse))
	sender.AppendResponse(azuretesting.NewResponseWithContent(runningView))
	sender.AppendResponse(azuretesting.NewResponseWithContent(guardedNIC))
	sender.AppendResponse(azuretesting.NewResponseWithContent(deallocatedView))
	sender.AppendResponse(azuretesting.NewResponseWithContent(bareNIC))

	client := defender.NewClient(newSession(c, sender))
	summary := report.NewSummary(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	err := client.ValidateVMs(context.Background(), "lab-rg", summary)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(summary.Passed, gc.Equals, 6)
	c.Check(summary.Warned, gc.Equals, 1)
	c.Check(summary.Failed, gc.Equals, 2)
	c.Check(summary.Ok(), jc.IsFalse)

	byCheck := make(map[string]report.Result)
	for _, r := range summary.Results {
		byCheck[r.Resource+"/"+r.Check] = r
	}
	c.Check(byCheck["subscription/defender-plan"].Status, gc.Equals, report.StatusPass)
	c.Check(byCheck["vm1/jit-policy"].Status, gc.Equals, report.StatusPass)
	c.Check(byCheck["vm1/power-state"].Status, gc.Equals, report.StatusPass)
	c.Check(byCheck["vm1/network-security-group"].Status, gc.Equals, report.StatusPass)
	c.Check(byCheck["vm2/jit-policy"].Status, gc.Equals, report.StatusFail)
	c.Check(byCheck["vm2/network-security-group"], gc.DeepEquals, report.Result{
		Resource: "vm2",
		Check:    "network-security-group",
		Status:   report.StatusFail,
		Detail:   "NIC nic2 has no network security group",
	})
	c.Check(byCheck["vm2/power-state"], gc.DeepEquals, report.Result{
		Resource: "vm2",
		Check:    "power-state",
		Status:   report.StatusWarn,
		Detail:   "deallocated",
	})
}

func (s *validateSuite) TestValidateVMsFreeTier(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{
		"value": [{"name": "VirtualMachines", "properties": {"pricingTier": "Free"}}]
	}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"value": []}`))

	client := defender.NewClient(newSession(c, sender))
	summary := report.NewSummary(time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC))
	err := client.ValidateVMs(context.Background(), "lab-rg", summary)
	c.Assert(err, jc.ErrorIsNil)

	c.Check(summary.Failed, gc.Equals, 1)
	c.Check(summary.Results[0].Detail, gc.Equals, "Defender for Servers on Free tier")
}
