// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package defender_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/azure/azuretesting"
	"github.com/seclab/seclab/internal/defender"
)

type jitSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&jitSuite{})

func ptr[T any](v T) *T {
	return &v
}

func fakeVM(name string, osType armcompute.OperatingSystemTypes) *armcompute.VirtualMachine {
	return &armcompute.VirtualMachine{
		ID:       ptr("/subscriptions/" + fakeSubscription + "/resourceGroups/seclab-rg/providers/Microsoft.Compute/virtualMachines/" + name),
		Name:     ptr(name),
		Location: ptr("eastus"),
		Properties: &armcompute.VirtualMachineProperties{
			StorageProfile: &armcompute.StorageProfile{
				OSDisk: &armcompute.OSDisk{OSType: ptr(osType)},
			},
		},
	}
}

func (s *jitSuite) TestManagementPortsWindows(c *gc.C) {
	ports := defender.ManagementPorts(armcompute.OperatingSystemTypesWindows)
	c.Assert(ports, gc.HasLen, 3)
	var numbers []int32
	for _, p := range ports {
		numbers = append(numbers, p.Number)
		c.Check(p.Protocol, gc.Equals, "*")
		c.Check(p.AllowedSourceAddressPrefix, gc.Equals, "*")
		c.Check(p.MaxRequestAccessDuration, gc.Equals, "PT3H")
	}
	c.Assert(numbers, jc.DeepEquals, []int32{3389, 5985, 5986})
}

func (s *jitSuite) TestManagementPortsLinux(c *gc.C) {
	ports := defender.ManagementPorts(armcompute.OperatingSystemTypesLinux)
	c.Assert(ports, gc.HasLen, 1)
	c.Assert(ports[0].Number, gc.Equals, int32(22))
	c.Assert(ports[0].MaxRequestAccessDuration, gc.Equals, "PT3H")
}

func (s *jitSuite) TestEnsureJITPolicyCreates(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("404 Not Found", http.StatusNotFound))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "web01"}`))
	client := defender.NewClient(newSession(c, sender))

	created, err := client.EnsureJITPolicy(context.Background(), "seclab-rg", fakeVM("web01", armcompute.OperatingSystemTypesLinux))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)

	c.Assert(sender.Requests, gc.HasLen, 2)
	put := sender.Requests[1]
	c.Assert(put.Method, gc.Equals, "PUT")
	c.Assert(put.URL.Path, gc.Equals, "/subscriptions/"+fakeSubscription+
		"/resourceGroups/seclab-rg/providers/Microsoft.Security/locations/eastus/jitNetworkAccessPolicies/web01")
	c.Assert(put.URL.Query().Get("api-version"), gc.Equals, "2020-01-01")

	var policy defender.JITPolicy
	data, err := io.ReadAll(put.Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &policy)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(policy.Kind, gc.Equals, "Basic")
	c.Assert(policy.Properties.VirtualMachines, gc.HasLen, 1)
	c.Assert(policy.Properties.VirtualMachines[0].Ports, gc.HasLen, 1)
	c.Assert(policy.Properties.VirtualMachines[0].Ports[0].Number, gc.Equals, int32(22))
}

func (s *jitSuite) TestEnsureJITPolicyUnchanged(c *gc.C) {
	vm := fakeVM("dc01", armcompute.OperatingSystemTypesWindows)
	existing := defender.JITPolicy{
		Name: "dc01",
		Properties: defender.JITProperties{
			VirtualMachines: []defender.JITVirtualMachine{
				{ID: *vm.ID, Ports: defender.ManagementPorts(armcompute.OperatingSystemTypesWindows)},
			},
		},
	}
	content, err := json.Marshal(existing)
	c.Assert(err, jc.ErrorIsNil)

	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(string(content)))
	client := defender.NewClient(newSession(c, sender))

	created, err := client.EnsureJITPolicy(context.Background(), "seclab-rg", vm)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsFalse)
	c.Assert(sender.Requests, gc.HasLen, 1)
}

func (s *jitSuite) TestEnsureJITPolicyAppendsVM(c *gc.C) {
	existing := defender.JITPolicy{
		Name: "web01",
		Properties: defender.JITProperties{
			VirtualMachines: []defender.JITVirtualMachine{
				{ID: "/other/vm", Ports: defender.ManagementPorts(armcompute.OperatingSystemTypesLinux)},
			},
		},
	}
	content, err := json.Marshal(existing)
	c.Assert(err, jc.ErrorIsNil)

	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(string(content)))
	sender.AppendResponse(azuretesting.NewResponseWithContent(`{"name": "web01"}`))
	client := defender.NewClient(newSession(c, sender))

	created, err := client.EnsureJITPolicy(context.Background(), "seclab-rg", fakeVM("web01", armcompute.OperatingSystemTypesLinux))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(created, jc.IsTrue)

	var updated defender.JITPolicy
	data, err := io.ReadAll(sender.Requests[1].Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &updated)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(updated.Properties.VirtualMachines, gc.HasLen, 2)
}

func (s *jitSuite) TestDeleteJITPolicyAlreadyGone(c *gc.C) {
	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithStatus("404 Not Found", http.StatusNotFound))
	client := defender.NewClient(newSession(c, sender))

	err := client.DeleteJITPolicy(context.Background(), "seclab-rg", "eastus", "gone")
	c.Assert(err, jc.ErrorIsNil)
}

func (s *jitSuite) TestRequestAccessUsesPolicyPorts(c *gc.C) {
	vm := fakeVM("web01", armcompute.OperatingSystemTypesLinux)
	existing := defender.JITPolicy{
		Name: "web01",
		Properties: defender.JITProperties{
			VirtualMachines: []defender.JITVirtualMachine{
				{ID: *vm.ID, Ports: defender.ManagementPorts(armcompute.OperatingSystemTypesLinux)},
			},
		},
	}
	content, err := json.Marshal(existing)
	c.Assert(err, jc.ErrorIsNil)

	sender := &azuretesting.MockSender{}
	sender.AppendResponse(azuretesting.NewResponseWithContent(string(content)))
	sender.AppendResponse(azuretesting.NewResponseWithStatus("202 Accepted", http.StatusAccepted))
	client := defender.NewClient(newSession(c, sender))

	err = client.RequestAccess(context.Background(), defender.AccessRequest{
		ResourceGroup: "seclab-rg",
		Location:      "eastus",
		PolicyName:    "web01",
		VMID:          *vm.ID,
		SourceAddress: "203.0.113.7",
		Duration:      "PT1H",
		Justification: "exercise 3",
	})
	c.Assert(err, jc.ErrorIsNil)

	c.Assert(sender.Requests, gc.HasLen, 2)
	post := sender.Requests[1]
	c.Assert(post.Method, gc.Equals, "POST")
	c.Assert(post.URL.Path, gc.Matches, ".*/jitNetworkAccessPolicies/web01/initiate")

	var body map[string]interface{}
	data, err := io.ReadAll(post.Body)
	c.Assert(err, jc.ErrorIsNil)
	err = json.Unmarshal(data, &body)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(body["justification"], gc.Equals, "exercise 3")
	vms := body["virtualMachines"].([]interface{})
	c.Assert(vms, gc.HasLen, 1)
	ports := vms[0].(map[string]interface{})["ports"].([]interface{})
	c.Assert(ports, gc.HasLen, 1)
	port := ports[0].(map[string]interface{})
	c.Assert(port["number"], gc.Equals, float64(22))
	c.Assert(port["duration"], gc.Equals, "PT1H")
	c.Assert(port["allowedSourceAddressPrefix"], gc.Equals, "203.0.113.7")
}
