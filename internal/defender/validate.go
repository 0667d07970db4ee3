// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package defender

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/seclab/seclab/internal/report"
)

const (
	checkPlan       = "defender-plan"
	checkPowerState = "power-state"
	checkProvision  = "provisioning"
	checkNSG        = "network-security-group"
	checkJIT        = "jit-policy"

	powerStateRunning = "PowerState/running"
)

// ValidateVMs checks the security posture of every VM in the resource
// group and records one result per check in the summary. A VM that fails
// a check, or cannot be inspected at all, never stops the walk; the
// failure is recorded and the next VM is checked.
func (c *Client) ValidateVMs(ctx context.Context, resourceGroup string, summary *report.Summary) error {
	c.validatePlan(ctx, summary)

	policies, err := c.JITPolicies(ctx)
	if err != nil {
		logger.Warningf("cannot list JIT policies: %v", err)
		summary.Warn("subscription", checkJIT, "JIT policies could not be listed: "+err.Error())
		policies = nil
	}
	covered := jitCoveredVMs(policies)

	vms, err := c.session.VirtualMachines()
	if err != nil {
		return errors.Trace(err)
	}
	pager := vms.NewListPager(resourceGroup, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return errors.Annotatef(err, "listing VMs in %q", resourceGroup)
		}
		for _, vm := range page.Value {
			if vm == nil || vm.Name == nil {
				continue
			}
			c.validateVM(ctx, resourceGroup, vm, covered, summary)
		}
	}
	return nil
}

func (c *Client) validatePlan(ctx context.Context, summary *report.Summary) {
	plans, err := c.Plans(ctx)
	if err != nil {
		summary.Fail("subscription", checkPlan, err.Error())
		return
	}
	for _, plan := range plans {
		if plan.Name != "VirtualMachines" {
			continue
		}
		if plan.Tier == tierStandard {
			summary.Pass("subscription", checkPlan, "Defender for Servers on "+plan.Tier)
		} else {
			summary.Fail("subscription", checkPlan, "Defender for Servers on "+plan.Tier+" tier")
		}
		return
	}
	summary.Fail("subscription", checkPlan, "no VirtualMachines plan found")
}

func (c *Client) validateVM(ctx context.Context, resourceGroup string, vm *armcompute.VirtualMachine, covered set.Strings, summary *report.Summary) {
	name := *vm.Name

	if vm.Properties != nil && vm.Properties.ProvisioningState != nil {
		if state := *vm.Properties.ProvisioningState; state == "Succeeded" {
			summary.Pass(name, checkProvision, state)
		} else {
			summary.Fail(name, checkProvision, state)
		}
	} else {
		summary.Warn(name, checkProvision, "provisioning state unknown")
	}

	c.validatePowerState(ctx, resourceGroup, name, summary)
	c.validateNSG(ctx, vm, summary)

	if vm.ID != nil && covered.Contains(strings.ToLower(*vm.ID)) {
		summary.Pass(name, checkJIT, "covered by a JIT policy")
	} else {
		summary.Fail(name, checkJIT, "no JIT policy covers this VM")
	}
}

func (c *Client) validatePowerState(ctx context.Context, resourceGroup, name string, summary *report.Summary) {
	vms, err := c.session.VirtualMachines()
	if err != nil {
		summary.Warn(name, checkPowerState, err.Error())
		return
	}
	view, err := vms.InstanceView(ctx, resourceGroup, name, nil)
	if err != nil {
		summary.Warn(name, checkPowerState, "instance view unavailable: "+err.Error())
		return
	}
	for _, status := range view.Statuses {
		if status == nil || status.Code == nil || !strings.HasPrefix(*status.Code, "PowerState/") {
			continue
		}
		if *status.Code == powerStateRunning {
			summary.Pass(name, checkPowerState, "running")
		} else {
			summary.Warn(name, checkPowerState, strings.TrimPrefix(*status.Code, "PowerState/"))
		}
		return
	}
	summary.Warn(name, checkPowerState, "no power state reported")
}

// validateNSG checks that every NIC on the VM sits behind a network
// security group. JIT cannot manage ports on a NIC without one.
func (c *Client) validateNSG(ctx context.Context, vm *armcompute.VirtualMachine, summary *report.Summary) {
	name := *vm.Name
	if vm.Properties == nil || vm.Properties.NetworkProfile == nil || len(vm.Properties.NetworkProfile.NetworkInterfaces) == 0 {
		summary.Warn(name, checkNSG, "no network interfaces reported")
		return
	}
	nics, err := c.session.NetworkInterfaces()
	if err != nil {
		summary.Warn(name, checkNSG, err.Error())
		return
	}
	for _, ref := range vm.Properties.NetworkProfile.NetworkInterfaces {
		if ref == nil || ref.ID == nil {
			continue
		}
		nicID, err := arm.ParseResourceID(*ref.ID)
		if err != nil {
			summary.Warn(name, checkNSG, "unparseable NIC id "+*ref.ID)
			return
		}
		nic, err := nics.Get(ctx, nicID.ResourceGroupName, nicID.Name, nil)
		if err != nil {
			summary.Warn(name, checkNSG, "NIC "+nicID.Name+" unavailable: "+err.Error())
			return
		}
		if nic.Properties == nil || nic.Properties.NetworkSecurityGroup == nil {
			summary.Fail(name, checkNSG, "NIC "+nicID.Name+" has no network security group")
			return
		}
	}
	summary.Pass(name, checkNSG, "every NIC has a network security group")
}

// jitCoveredVMs collects the lowercased IDs of every VM any JIT policy
// covers. Resource IDs compare case-insensitively.
func jitCoveredVMs(policies []JITPolicy) set.Strings {
	covered := set.NewStrings()
	for _, policy := range policies {
		for _, vm := range policy.Properties.VirtualMachines {
			covered.Add(strings.ToLower(vm.ID))
		}
	}
	return covered
}
