// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package sentinel onboards Microsoft Sentinel onto a Log Analytics
// workspace and manages its analytics rules and data connectors. The
// Microsoft.SecurityInsights provider has no first-class client here, so
// everything goes through the raw management plane caller.
package sentinel

import (
	"context"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/seclab/seclab/internal/azure"
)

var logger = loggo.GetLogger("seclab.sentinel")

const (
	// apiVersion is the Microsoft.SecurityInsights api-version this
	// package is written against.
	apiVersion = "2023-02-01"
)

// Workspace locates the Log Analytics workspace Sentinel runs on.
type Workspace struct {
	ResourceGroup string
	Name          string
}

// Validate checks the workspace reference is complete.
func (w Workspace) Validate() error {
	if w.ResourceGroup == "" {
		return errors.NotValidf("empty resource group")
	}
	if w.Name == "" {
		return errors.NotValidf("empty workspace name")
	}
	return nil
}

// Client performs Sentinel operations on one workspace.
type Client struct {
	caller    *azure.Caller
	workspace Workspace
}

// NewClient returns a client bound to the given workspace.
func NewClient(session *azure.Session, workspace Workspace) (*Client, error) {
	if err := workspace.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Client{caller: session.Caller(), workspace: workspace}, nil
}

func (c *Client) workspacePath(parts ...string) string {
	base := []string{
		"resourceGroups", c.workspace.ResourceGroup,
		"providers", "Microsoft.OperationalInsights",
		"workspaces", c.workspace.Name,
		"providers", "Microsoft.SecurityInsights",
	}
	return c.caller.SubscriptionPath(append(base, parts...)...)
}

type onboardingState struct {
	Name       string                    `json:"name,omitempty"`
	Properties onboardingStateProperties `json:"properties"`
}

type onboardingStateProperties struct {
	CustomerManagedKey bool `json:"customerManagedKey"`
}

// Onboard enables Sentinel on the workspace. Onboarding a workspace that
// already has Sentinel enabled succeeds and returns false.
func (c *Client) Onboard(ctx context.Context) (bool, error) {
	path := c.workspacePath("onboardingStates", "default")
	var current onboardingState
	err := c.caller.Get(ctx, path, apiVersion, &current)
	if err == nil {
		logger.Debugf("workspace %q already onboarded", c.workspace.Name)
		return false, nil
	}
	if !errors.Is(err, errors.NotFound) {
		return false, errors.Annotatef(err, "reading onboarding state of %q", c.workspace.Name)
	}
	body := onboardingState{Properties: onboardingStateProperties{CustomerManagedKey: false}}
	if err := c.caller.Put(ctx, path, apiVersion, body, nil); err != nil {
		return false, errors.Annotatef(err, "onboarding workspace %q", c.workspace.Name)
	}
	return true, nil
}

// Onboarded reports whether Sentinel is enabled on the workspace.
func (c *Client) Onboarded(ctx context.Context) (bool, error) {
	var state onboardingState
	err := c.caller.Get(ctx, c.workspacePath("onboardingStates", "default"), apiVersion, &state)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Annotatef(err, "reading onboarding state of %q", c.workspace.Name)
	}
	return true, nil
}

// ScheduledRuleArgs describes a scheduled analytics rule.
type ScheduledRuleArgs struct {
	DisplayName string
	Description string
	// Severity is one of High, Medium, Low, Informational.
	Severity string
	// Query is the KQL the rule runs.
	Query string
	// Frequency and Period are ISO 8601 durations; both default to PT1H.
	Frequency string
	Period    string
	// Threshold is the result count above which the rule fires.
	Threshold int
	Enabled   bool
}

// Validate checks the rule args.
func (a ScheduledRuleArgs) Validate() error {
	if a.DisplayName == "" {
		return errors.NotValidf("empty display name")
	}
	if a.Query == "" {
		return errors.NotValidf("empty query")
	}
	switch a.Severity {
	case "High", "Medium", "Low", "Informational":
	default:
		return errors.NotValidf("severity %q", a.Severity)
	}
	return nil
}

// Rule is a Sentinel analytics rule.
type Rule struct {
	ID         string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Kind       string         `json:"kind" yaml:"kind"`
	Properties RuleProperties `json:"properties" yaml:"properties"`
}

// RuleProperties holds the scheduled rule settings.
type RuleProperties struct {
	DisplayName         string `json:"displayName" yaml:"display-name"`
	Description         string `json:"description,omitempty" yaml:"description,omitempty"`
	Severity            string `json:"severity" yaml:"severity"`
	Query               string `json:"query" yaml:"query"`
	QueryFrequency      string `json:"queryFrequency" yaml:"query-frequency"`
	QueryPeriod         string `json:"queryPeriod" yaml:"query-period"`
	TriggerOperator     string `json:"triggerOperator" yaml:"trigger-operator"`
	TriggerThreshold    int    `json:"triggerThreshold" yaml:"trigger-threshold"`
	SuppressionDuration string `json:"suppressionDuration" yaml:"suppression-duration"`
	SuppressionEnabled  bool   `json:"suppressionEnabled" yaml:"suppression-enabled"`
	Enabled             bool   `json:"enabled" yaml:"enabled"`
}

type ruleList struct {
	Value []Rule `json:"value"`
}

// AddScheduledRule creates a scheduled analytics rule. A rule with the
// same display name is left untouched and reported as unchanged.
func (c *Client) AddScheduledRule(ctx context.Context, args ScheduledRuleArgs) (bool, error) {
	if err := args.Validate(); err != nil {
		return false, errors.Trace(err)
	}
	rules, err := c.ScheduledRules(ctx)
	if err != nil {
		return false, errors.Trace(err)
	}
	for _, rule := range rules {
		if rule.Properties.DisplayName == args.DisplayName {
			logger.Debugf("analytics rule %q already exists", args.DisplayName)
			return false, nil
		}
	}

	frequency := args.Frequency
	if frequency == "" {
		frequency = "PT1H"
	}
	period := args.Period
	if period == "" {
		period = "PT1H"
	}
	body := Rule{
		Kind: "Scheduled",
		Properties: RuleProperties{
			DisplayName:         args.DisplayName,
			Description:         args.Description,
			Severity:            args.Severity,
			Query:               args.Query,
			QueryFrequency:      frequency,
			QueryPeriod:         period,
			TriggerOperator:     "GreaterThan",
			TriggerThreshold:    args.Threshold,
			SuppressionDuration: "PT1H",
			SuppressionEnabled:  false,
			Enabled:             args.Enabled,
		},
	}
	path := c.workspacePath("alertRules", uuid.NewString())
	if err := c.caller.Put(ctx, path, apiVersion, body, nil); err != nil {
		return false, errors.Annotatef(err, "creating analytics rule %q", args.DisplayName)
	}
	return true, nil
}

// ScheduledRules lists the workspace's analytics rules.
func (c *Client) ScheduledRules(ctx context.Context) ([]Rule, error) {
	var list ruleList
	if err := c.caller.Get(ctx, c.workspacePath("alertRules"), apiVersion, &list); err != nil {
		return nil, errors.Annotate(err, "listing analytics rules")
	}
	return list.Value, nil
}

// Connector is a Sentinel data connector.
type Connector struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind string `json:"kind" yaml:"kind"`
}

type connectorList struct {
	Value []Connector `json:"value"`
}

// Connectors lists the workspace's data connectors.
func (c *Client) Connectors(ctx context.Context) ([]Connector, error) {
	var list connectorList
	if err := c.caller.Get(ctx, c.workspacePath("dataConnectors"), apiVersion, &list); err != nil {
		return nil, errors.Annotate(err, "listing data connectors")
	}
	return list.Value, nil
}
