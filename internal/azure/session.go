// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package azure manages the connection to the Azure management plane:
// credential acquisition from an already-established az CLI session,
// subscription resolution, and construction of the resource management
// clients the rest of the tool works with.
package azure

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v2"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/network/armnetwork"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("seclab.azure")

// SessionParams holds the knobs for opening a Session. Everything except
// SubscriptionID has a sensible default; tests override Credential and
// ClientOptions to avoid touching the network.
type SessionParams struct {
	// SubscriptionID identifies the subscription all management plane
	// calls are scoped to.
	SubscriptionID string

	// TenantID optionally pins the tenant used for authentication.
	TenantID string

	// Credential, if set, is used instead of the CLI credential chain.
	Credential azcore.TokenCredential

	// ClientOptions are passed to every constructed client, allowing a
	// transport override.
	ClientOptions arm.ClientOptions

	// Clock is used for retry delays on rate limited calls.
	Clock clock.Clock
}

// Validate checks that the params are complete enough to open a session.
func (p SessionParams) Validate() error {
	if p.SubscriptionID == "" {
		return errors.NotValidf("empty SubscriptionID")
	}
	if p.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	return nil
}

// Session is an authenticated handle to one subscription. It is cheap to
// copy around; clients are constructed on demand.
type Session struct {
	subscriptionID string
	tenantID       string
	credential     azcore.TokenCredential
	clientOptions  arm.ClientOptions
	clock          clock.Clock
}

// NewSession opens a session using the supplied params. When no explicit
// credential is given, the az CLI session is tried first so the tool works
// the same way the lab scripts did; DefaultAzureCredential is the fallback
// for service principal and managed identity environments.
func NewSession(params SessionParams) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Annotate(err, "validating session params")
	}
	cred := params.Credential
	if cred == nil {
		var err error
		cred, err = newCredentialChain(params.TenantID)
		if err != nil {
			return nil, errors.Annotate(err, "acquiring credential")
		}
	}
	return &Session{
		subscriptionID: params.SubscriptionID,
		tenantID:       params.TenantID,
		credential:     cred,
		clientOptions:  params.ClientOptions,
		clock:          params.Clock,
	}, nil
}

func newCredentialChain(tenantID string) (azcore.TokenCredential, error) {
	cliCred, cliErr := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
		TenantID: tenantID,
	})
	if cliErr == nil {
		logger.Debugf("using az CLI credential")
		return cliCred, nil
	}
	logger.Debugf("az CLI credential unavailable: %v", cliErr)
	defaultCred, err := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: tenantID,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return defaultCred, nil
}

// SubscriptionID returns the subscription the session is scoped to.
func (s *Session) SubscriptionID() string {
	return s.subscriptionID
}

// TenantID returns the tenant the session authenticated against, which may
// be empty when the credential's home tenant is used.
func (s *Session) TenantID() string {
	return s.tenantID
}

// Credential returns the session's token credential, for clients built
// outside this package (e.g. the Graph service client).
func (s *Session) Credential() azcore.TokenCredential {
	return s.credential
}

// Clock returns the session clock.
func (s *Session) Clock() clock.Clock {
	return s.clock
}

// Subscriptions returns a client for enumerating and inspecting
// subscriptions.
func (s *Session) Subscriptions() (*armsubscriptions.Client, error) {
	client, err := armsubscriptions.NewClient(s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// ResourceGroups returns a client for resource group operations.
func (s *Session) ResourceGroups() (*armresources.ResourceGroupsClient, error) {
	client, err := armresources.NewResourceGroupsClient(s.subscriptionID, s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// VirtualMachines returns a client for VM enumeration and instance views.
func (s *Session) VirtualMachines() (*armcompute.VirtualMachinesClient, error) {
	client, err := armcompute.NewVirtualMachinesClient(s.subscriptionID, s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// NetworkInterfaces returns a client for NIC lookups, used when relating a
// VM to the security group protecting it.
func (s *Session) NetworkInterfaces() (*armnetwork.InterfacesClient, error) {
	client, err := armnetwork.NewInterfacesClient(s.subscriptionID, s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// RoleAssignments returns a client for management plane role assignments.
func (s *Session) RoleAssignments() (*armauthorization.RoleAssignmentsClient, error) {
	client, err := armauthorization.NewRoleAssignmentsClient(s.subscriptionID, s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// RoleDefinitions returns a client for looking up role definitions by name.
func (s *Session) RoleDefinitions() (*armauthorization.RoleDefinitionsClient, error) {
	client, err := armauthorization.NewRoleDefinitionsClient(s.credential, &s.clientOptions)
	return client, errors.Trace(err)
}

// CurrentSubscription fetches the display name and state of the session's
// subscription, verifying the credential as a side effect.
func (s *Session) CurrentSubscription(ctx context.Context) (*armsubscriptions.Subscription, error) {
	client, err := s.Subscriptions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	resp, err := client.Get(ctx, s.subscriptionID, nil)
	if err != nil {
		return nil, errors.Annotatef(maybeCredentialError(err), "fetching subscription %q", s.subscriptionID)
	}
	return &resp.Subscription, nil
}
