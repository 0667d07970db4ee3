// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package defender

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/juju/errors"
)

const (
	// jitAPIVersion is the Microsoft.Security/jitNetworkAccessPolicies
	// api-version this package is written against.
	jitAPIVersion = "2020-01-01"

	// maxAccessDuration caps how long a JIT request can hold a port open.
	maxAccessDuration = "PT3H"

	anyProtocol = "*"
	anySource   = "*"
)

// JITPort describes one port a JIT policy manages on a VM.
type JITPort struct {
	Number                     int32  `json:"number" yaml:"number"`
	Protocol                   string `json:"protocol" yaml:"protocol"`
	AllowedSourceAddressPrefix string `json:"allowedSourceAddressPrefix,omitempty" yaml:"source,omitempty"`
	MaxRequestAccessDuration   string `json:"maxRequestAccessDuration" yaml:"max-duration"`
}

// JITVirtualMachine is one VM entry within a JIT policy.
type JITVirtualMachine struct {
	ID    string    `json:"id" yaml:"id"`
	Ports []JITPort `json:"ports" yaml:"ports"`
}

// JITPolicy is a just-in-time network access policy as held by
// Microsoft.Security.
type JITPolicy struct {
	ID         string        `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Kind       string        `json:"kind,omitempty" yaml:"kind,omitempty"`
	Location   string        `json:"location,omitempty" yaml:"location,omitempty"`
	Properties JITProperties `json:"properties" yaml:"properties"`
}

// JITProperties holds the policy's VM entries.
type JITProperties struct {
	VirtualMachines   []JITVirtualMachine `json:"virtualMachines" yaml:"virtual-machines"`
	ProvisioningState string              `json:"provisioningState,omitempty" yaml:"provisioning-state,omitempty"`
}

type jitPolicyList struct {
	Value []JITPolicy `json:"value"`
}

// ManagementPorts returns the ports a JIT policy should manage for a VM
// of the given OS type. Windows gets RDP and WinRM, everything else SSH.
func ManagementPorts(osType armcompute.OperatingSystemTypes) []JITPort {
	var numbers []int32
	if osType == armcompute.OperatingSystemTypesWindows {
		numbers = []int32{3389, 5985, 5986}
	} else {
		numbers = []int32{22}
	}
	ports := make([]JITPort, len(numbers))
	for i, n := range numbers {
		ports[i] = JITPort{
			Number:                     n,
			Protocol:                   anyProtocol,
			AllowedSourceAddressPrefix: anySource,
			MaxRequestAccessDuration:   maxAccessDuration,
		}
	}
	return ports
}

func (c *Client) jitPolicyPath(resourceGroup, location, name string) string {
	return c.caller.SubscriptionPath(
		"resourceGroups", resourceGroup,
		"providers", "Microsoft.Security",
		"locations", location,
		"jitNetworkAccessPolicies", name,
	)
}

// EnsureJITPolicy makes sure a JIT policy covers the given VM, creating
// the policy or appending the VM entry as needed. The policy is named
// after the VM. It returns false when the policy already covered the VM
// with the same port set.
func (c *Client) EnsureJITPolicy(ctx context.Context, resourceGroup string, vm *armcompute.VirtualMachine) (bool, error) {
	if vm == nil || vm.ID == nil || vm.Name == nil || vm.Location == nil {
		return false, errors.NotValidf("virtual machine missing id, name or location")
	}
	osType := osTypeOf(vm)
	entry := JITVirtualMachine{ID: *vm.ID, Ports: ManagementPorts(osType)}
	path := c.jitPolicyPath(resourceGroup, strings.ToLower(*vm.Location), *vm.Name)

	var existing JITPolicy
	err := c.caller.Get(ctx, path, jitAPIVersion, &existing)
	switch {
	case err == nil:
		if policyCovers(existing, entry) {
			logger.Debugf("JIT policy for %q already in place", *vm.Name)
			return false, nil
		}
		existing.Properties.VirtualMachines = mergeVMEntry(existing.Properties.VirtualMachines, entry)
		existing.Properties.ProvisioningState = ""
		if err := c.caller.Put(ctx, path, jitAPIVersion, existing, nil); err != nil {
			return false, errors.Annotatef(err, "updating JIT policy for %q", *vm.Name)
		}
		return true, nil
	case errors.Is(err, errors.NotFound):
		policy := JITPolicy{
			Kind:       "Basic",
			Location:   strings.ToLower(*vm.Location),
			Properties: JITProperties{VirtualMachines: []JITVirtualMachine{entry}},
		}
		if err := c.caller.Put(ctx, path, jitAPIVersion, policy, nil); err != nil {
			return false, errors.Annotatef(err, "creating JIT policy for %q", *vm.Name)
		}
		return true, nil
	default:
		return false, errors.Annotatef(err, "reading JIT policy for %q", *vm.Name)
	}
}

// JITPolicies lists every JIT policy on the subscription.
func (c *Client) JITPolicies(ctx context.Context) ([]JITPolicy, error) {
	var result jitPolicyList
	path := c.caller.SubscriptionPath("providers", "Microsoft.Security", "jitNetworkAccessPolicies")
	if err := c.caller.Get(ctx, path, jitAPIVersion, &result); err != nil {
		return nil, errors.Annotate(err, "listing JIT policies")
	}
	return result.Value, nil
}

// DeleteJITPolicy removes the named JIT policy. Deleting a policy that is
// already gone succeeds.
func (c *Client) DeleteJITPolicy(ctx context.Context, resourceGroup, location, name string) error {
	path := c.jitPolicyPath(resourceGroup, strings.ToLower(location), name)
	return errors.Annotatef(c.caller.Delete(ctx, path, jitAPIVersion), "deleting JIT policy %q", name)
}

type jitInitiateRequest struct {
	VirtualMachines []jitInitiateVM `json:"virtualMachines"`
	Justification   string          `json:"justification,omitempty"`
}

type jitInitiateVM struct {
	ID    string            `json:"id"`
	Ports []jitInitiatePort `json:"ports"`
}

type jitInitiatePort struct {
	Number                     int32  `json:"number"`
	Duration                   string `json:"duration"`
	AllowedSourceAddressPrefix string `json:"allowedSourceAddressPrefix,omitempty"`
}

// AccessRequest carries the parameters of a JIT access request.
type AccessRequest struct {
	ResourceGroup string
	Location      string
	PolicyName    string
	VMID          string
	SourceAddress string
	Duration      string
	Justification string
}

// RequestAccess initiates JIT access to every port the policy manages on
// the VM. An empty Duration asks for the policy maximum; an empty
// SourceAddress allows any source.
func (r AccessRequest) validate() error {
	if r.PolicyName == "" {
		return errors.NotValidf("empty policy name")
	}
	if r.VMID == "" {
		return errors.NotValidf("empty VM id")
	}
	return nil
}

// RequestAccess asks Defender to open the policy's ports on the VM for the
// requested duration.
func (c *Client) RequestAccess(ctx context.Context, req AccessRequest) error {
	if err := req.validate(); err != nil {
		return errors.Trace(err)
	}
	path := c.jitPolicyPath(req.ResourceGroup, strings.ToLower(req.Location), req.PolicyName)

	var policy JITPolicy
	if err := c.caller.Get(ctx, path, jitAPIVersion, &policy); err != nil {
		return errors.Annotatef(err, "reading JIT policy %q", req.PolicyName)
	}
	entry, ok := findVMEntry(policy, req.VMID)
	if !ok {
		return errors.NotFoundf("VM %q in JIT policy %q", req.VMID, req.PolicyName)
	}

	duration := req.Duration
	if duration == "" {
		duration = maxAccessDuration
	}
	source := req.SourceAddress
	if source == "" {
		source = anySource
	}
	ports := make([]jitInitiatePort, len(entry.Ports))
	for i, p := range entry.Ports {
		ports[i] = jitInitiatePort{
			Number:                     p.Number,
			Duration:                   duration,
			AllowedSourceAddressPrefix: source,
		}
	}
	body := jitInitiateRequest{
		VirtualMachines: []jitInitiateVM{{ID: req.VMID, Ports: ports}},
		Justification:   req.Justification,
	}
	err := c.caller.Post(ctx, path+"/initiate", jitAPIVersion, body, nil)
	return errors.Annotatef(err, "requesting JIT access via policy %q", req.PolicyName)
}

func osTypeOf(vm *armcompute.VirtualMachine) armcompute.OperatingSystemTypes {
	if vm.Properties != nil &&
		vm.Properties.StorageProfile != nil &&
		vm.Properties.StorageProfile.OSDisk != nil &&
		vm.Properties.StorageProfile.OSDisk.OSType != nil {
		return *vm.Properties.StorageProfile.OSDisk.OSType
	}
	return armcompute.OperatingSystemTypesLinux
}

func policyCovers(policy JITPolicy, want JITVirtualMachine) bool {
	entry, ok := findVMEntry(policy, want.ID)
	if !ok {
		return false
	}
	have := make(map[int32]bool)
	for _, p := range entry.Ports {
		have[p.Number] = true
	}
	for _, p := range want.Ports {
		if !have[p.Number] {
			return false
		}
	}
	return true
}

func findVMEntry(policy JITPolicy, vmID string) (JITVirtualMachine, bool) {
	for _, entry := range policy.Properties.VirtualMachines {
		if strings.EqualFold(entry.ID, vmID) {
			return entry, true
		}
	}
	return JITVirtualMachine{}, false
}

func mergeVMEntry(entries []JITVirtualMachine, entry JITVirtualMachine) []JITVirtualMachine {
	for i, e := range entries {
		if strings.EqualFold(e.ID, entry.ID) {
			entries[i] = entry
			return entries
		}
	}
	return append(entries, entry)
}
