// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package entra

import (
	"context"
	"strings"

	"github.com/juju/errors"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/seclab/seclab/internal/graph"
)

// CAPolicy is the subset of conditional access policy attributes the
// lab works with.
type CAPolicy struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"display-name"`
	State       string `json:"state" yaml:"state"`
}

// AddCAPolicyArgs describes a conditional access policy requiring MFA
// for a set of users.
type AddCAPolicyArgs struct {
	DisplayName string
	// IncludeUsers are user or group object ids the policy applies to.
	// Empty means all users.
	IncludeUsers []string
	// ExcludeUsers are object ids exempt from the policy. Labs exclude
	// the break-glass account here.
	ExcludeUsers []string
	// ReportOnly creates the policy in report-only state instead of
	// enabled.
	ReportOnly bool
}

// AddCAPolicy creates a conditional access policy granting access only
// with MFA. A policy with the same display name is left untouched and
// reported as unchanged.
func (c *Client) AddCAPolicy(ctx context.Context, args AddCAPolicyArgs) (*CAPolicy, bool, error) {
	if args.DisplayName == "" {
		return nil, false, errors.NotValidf("empty policy name")
	}
	existing, err := c.CAPolicies(ctx)
	if err != nil {
		return nil, false, errors.Trace(err)
	}
	for _, p := range existing {
		if strings.EqualFold(p.DisplayName, args.DisplayName) {
			logger.Debugf("conditional access policy %q already exists", args.DisplayName)
			p := p
			return &p, false, nil
		}
	}

	includeUsers := args.IncludeUsers
	if len(includeUsers) == 0 {
		includeUsers = []string{"All"}
	}
	policyUsers := graphmodels.NewConditionalAccessUsers()
	policyUsers.SetIncludeUsers(includeUsers)
	policyUsers.SetExcludeUsers(args.ExcludeUsers)
	apps := graphmodels.NewConditionalAccessApplications()
	apps.SetIncludeApplications([]string{"All"})
	conditions := graphmodels.NewConditionalAccessConditionSet()
	conditions.SetUsers(policyUsers)
	conditions.SetApplications(apps)

	grant := graphmodels.NewConditionalAccessGrantControls()
	grant.SetOperator(ptr("OR"))
	grant.SetBuiltInControls([]graphmodels.ConditionalAccessGrantControl{
		graphmodels.MFA_CONDITIONALACCESSGRANTCONTROL,
	})

	state := graphmodels.ENABLED_CONDITIONALACCESSPOLICYSTATE
	if args.ReportOnly {
		state = graphmodels.ENABLEDFORREPORTINGBUTNOTENFORCED_CONDITIONALACCESSPOLICYSTATE
	}

	body := graphmodels.NewConditionalAccessPolicy()
	body.SetDisplayName(ptr(args.DisplayName))
	body.SetState(ptr(state))
	body.SetConditions(conditions)
	body.SetGrantControls(grant)

	created, err := c.graph.Identity().ConditionalAccess().Policies().Post(ctx, body, nil)
	if err != nil {
		return nil, false, errors.Annotatef(graph.NormalizeError(err), "creating conditional access policy %q", args.DisplayName)
	}
	return caPolicyFromModel(created), true, nil
}

// CAPolicies lists the tenant's conditional access policies.
func (c *Client) CAPolicies(ctx context.Context) ([]CAPolicy, error) {
	page, err := c.graph.Identity().ConditionalAccess().Policies().Get(ctx, nil)
	if err != nil {
		return nil, errors.Annotate(graph.NormalizeError(err), "listing conditional access policies")
	}
	var result []CAPolicy
	for {
		for _, p := range page.GetValue() {
			result = append(result, *caPolicyFromModel(p))
		}
		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			break
		}
		page, err = c.graph.Identity().ConditionalAccess().Policies().WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, errors.Annotate(graph.NormalizeError(err), "listing conditional access policies")
		}
	}
	return result, nil
}

func caPolicyFromModel(p graphmodels.ConditionalAccessPolicyable) *CAPolicy {
	out := &CAPolicy{}
	if v := p.GetId(); v != nil {
		out.ID = *v
	}
	if v := p.GetDisplayName(); v != nil {
		out.DisplayName = *v
	}
	if v := p.GetState(); v != nil {
		out.State = v.String()
	}
	return out
}
