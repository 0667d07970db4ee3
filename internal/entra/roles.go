// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entra

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v3"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"github.com/microsoft/kiota-abstractions-go/serialization"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/rolemanagement"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/graph"
)

const (
	// Newly created principals are not immediately visible to the role
	// assignment services. Grants retry a few times with a flat delay.
	propagationAttempts = 3
	propagationDelay    = 10 * time.Second

	directoryScopeRoot = "/"
)

// GrantDirectoryRole assigns the named directory role (e.g. "Security
// Reader") to the principal at tenant scope. Granting a role the
// principal already holds succeeds without change.
func (c *Client) GrantDirectoryRole(ctx context.Context, principalID, roleName string) (bool, error) {
	roleDefID, err := c.directoryRoleDefinition(ctx, roleName)
	if err != nil {
		return false, errors.Trace(err)
	}
	body := graphmodels.NewUnifiedRoleAssignment()
	body.SetPrincipalId(ptr(principalID))
	body.SetRoleDefinitionId(ptr(roleDefID))
	body.SetDirectoryScopeId(ptr(directoryScopeRoot))

	var alreadyExists bool
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			_, err := c.graph.RoleManagement().Directory().RoleAssignments().Post(ctx, body, nil)
			err = graph.NormalizeError(err)
			if errors.Is(err, errors.AlreadyExists) {
				alreadyExists = true
				return nil
			}
			return err
		},
		IsFatalError: func(err error) bool {
			return !graph.IsPropagationError(errors.Cause(err))
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("granting %q to %q attempt %d: %v", roleName, principalID, attempt, err)
		},
		Attempts: propagationAttempts,
		Delay:    propagationDelay,
		Clock:    c.session.Clock(),
		Stop:     ctx.Done(),
	})
	if err != nil {
		return false, errors.Annotatef(err, "granting directory role %q to %q", roleName, principalID)
	}
	return !alreadyExists, nil
}

func (c *Client) directoryRoleDefinition(ctx context.Context, roleName string) (string, error) {
	config := &rolemanagement.DirectoryRoleDefinitionsRequestBuilderGetRequestConfiguration{
		QueryParameters: &rolemanagement.DirectoryRoleDefinitionsRequestBuilderGetQueryParameters{
			Filter: ptr("displayName eq '" + roleName + "'"),
		},
	}
	defs, err := c.graph.RoleManagement().Directory().RoleDefinitions().Get(ctx, config)
	if err != nil {
		return "", errors.Annotatef(graph.NormalizeError(err), "looking up directory role %q", roleName)
	}
	for _, def := range defs.GetValue() {
		if def.GetId() != nil {
			return *def.GetId(), nil
		}
	}
	return "", errors.NotFoundf("directory role %q", roleName)
}

// GrantSubscriptionRole assigns an Azure RBAC role (e.g. "Reader") to the
// principal at subscription scope. PrincipalNotFound responses are
// retried to ride out directory propagation; an existing identical
// assignment is reported as unchanged.
func (c *Client) GrantSubscriptionRole(ctx context.Context, principalID, roleName string) (bool, error) {
	roleDefID, err := c.subscriptionRoleDefinition(ctx, roleName)
	if err != nil {
		return false, errors.Trace(err)
	}
	assignments, err := c.session.RoleAssignments()
	if err != nil {
		return false, errors.Trace(err)
	}
	scope := "/subscriptions/" + c.session.SubscriptionID()
	params := armauthorization.RoleAssignmentCreateParameters{
		Properties: &armauthorization.RoleAssignmentProperties{
			PrincipalID:      ptr(principalID),
			RoleDefinitionID: ptr(roleDefID),
		},
	}

	var alreadyExists bool
	err = retry.Call(retry.CallArgs{
		Func: func() error {
			_, err := assignments.Create(ctx, scope, uuid.NewString(), params, nil)
			switch azure.ErrorCode(err) {
			case "RoleAssignmentExists":
				alreadyExists = true
				return nil
			}
			return err
		},
		IsFatalError: func(err error) bool {
			return azure.ErrorCode(errors.Cause(err)) != "PrincipalNotFound"
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Debugf("assigning %q to %q attempt %d: %v", roleName, principalID, attempt, err)
		},
		Attempts: propagationAttempts,
		Delay:    propagationDelay,
		Clock:    c.session.Clock(),
		Stop:     ctx.Done(),
	})
	if err != nil {
		return false, errors.Annotatef(err, "assigning role %q to %q", roleName, principalID)
	}
	return !alreadyExists, nil
}

func (c *Client) subscriptionRoleDefinition(ctx context.Context, roleName string) (string, error) {
	defs, err := c.session.RoleDefinitions()
	if err != nil {
		return "", errors.Trace(err)
	}
	scope := "/subscriptions/" + c.session.SubscriptionID()
	pager := defs.NewListPager(scope, &armauthorization.RoleDefinitionsClientListOptions{
		Filter: ptr("roleName eq '" + roleName + "'"),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return "", errors.Annotatef(err, "looking up role definition %q", roleName)
		}
		for _, def := range page.Value {
			if def.ID != nil {
				return *def.ID, nil
			}
		}
	}
	return "", errors.NotFoundf("role definition %q", roleName)
}

// EligibilityArgs carries the parameters for a PIM role eligibility.
type EligibilityArgs struct {
	PrincipalID string
	RoleName    string
	// Duration is an ISO 8601 duration (e.g. "P90D") the eligibility
	// lasts for.
	Duration      string
	Justification string
}

// RequestEligibility makes the principal eligible for the directory
// role through PIM, starting now and expiring after Duration.
func (c *Client) RequestEligibility(ctx context.Context, args EligibilityArgs) error {
	roleDefID, err := c.directoryRoleDefinition(ctx, args.RoleName)
	if err != nil {
		return errors.Trace(err)
	}
	duration, err := serialization.ParseISODuration(args.Duration)
	if err != nil {
		return errors.NotValidf("duration %q", args.Duration)
	}

	body := graphmodels.NewUnifiedRoleEligibilityScheduleRequest()
	body.SetAction(ptr(graphmodels.ADMINASSIGN_UNIFIEDROLESCHEDULEREQUESTACTIONS))
	body.SetPrincipalId(ptr(args.PrincipalID))
	body.SetRoleDefinitionId(ptr(roleDefID))
	body.SetDirectoryScopeId(ptr(directoryScopeRoot))
	body.SetJustification(ptr(args.Justification))
	body.SetScheduleInfo(requestSchedule(c.now(), duration))

	_, err = c.graph.RoleManagement().Directory().RoleEligibilityScheduleRequests().Post(ctx, body, nil)
	return errors.Annotatef(graph.NormalizeError(err), "requesting eligibility for %q", args.RoleName)
}

// ActivationArgs carries the parameters for activating an eligible role.
type ActivationArgs struct {
	PrincipalID string
	RoleName    string
	// Duration is an ISO 8601 duration (e.g. "PT8H") the activation
	// lasts for.
	Duration      string
	Justification string
}

// ActivateRole self-activates an eligible directory role for the given
// duration. PIM requires a justification.
func (c *Client) ActivateRole(ctx context.Context, args ActivationArgs) error {
	if args.Justification == "" {
		return errors.NotValidf("empty justification")
	}
	roleDefID, err := c.directoryRoleDefinition(ctx, args.RoleName)
	if err != nil {
		return errors.Trace(err)
	}
	duration, err := serialization.ParseISODuration(args.Duration)
	if err != nil {
		return errors.NotValidf("duration %q", args.Duration)
	}

	body := graphmodels.NewUnifiedRoleAssignmentScheduleRequest()
	body.SetAction(ptr(graphmodels.SELFACTIVATE_UNIFIEDROLESCHEDULEREQUESTACTIONS))
	body.SetPrincipalId(ptr(args.PrincipalID))
	body.SetRoleDefinitionId(ptr(roleDefID))
	body.SetDirectoryScopeId(ptr(directoryScopeRoot))
	body.SetJustification(ptr(args.Justification))
	body.SetScheduleInfo(requestSchedule(c.now(), duration))

	_, err = c.graph.RoleManagement().Directory().RoleAssignmentScheduleRequests().Post(ctx, body, nil)
	return errors.Annotatef(graph.NormalizeError(err), "activating role %q", args.RoleName)
}

func requestSchedule(start time.Time, duration *serialization.ISODuration) graphmodels.RequestScheduleable {
	schedule := graphmodels.NewRequestSchedule()
	schedule.SetStartDateTime(&start)
	expiration := graphmodels.NewExpirationPattern()
	expiration.SetTypeEscaped(ptr(graphmodels.AFTERDURATION_EXPIRATIONPATTERNTYPE))
	expiration.SetDuration(duration)
	schedule.SetExpiration(expiration)
	return schedule
}

func (c *Client) now() time.Time {
	return c.session.Clock().Now().UTC()
}
