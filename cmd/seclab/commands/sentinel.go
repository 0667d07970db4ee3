// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/sentinel"
)

// sentinelCommandBase opens the Sentinel client on the workspace named
// in the parameters file.
type sentinelCommandBase struct {
	labCommandBase
	client *sentinel.Client
}

func (c *sentinelCommandBase) Sentinel(ctx *cmd.Context) (*sentinel.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Workspace() == "" {
		return nil, errors.New("no workspace configured in the parameters file")
	}
	session, err := c.Session(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	client, err := sentinel.NewClient(session, sentinel.Workspace{
		ResourceGroup: cfg.ResourceGroup(),
		Name:          cfg.Workspace(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.client = client
	return client, nil
}

const onboardSentinelDoc = `
Enables Microsoft Sentinel on the lab's Log Analytics workspace.

Onboarding a workspace that already runs Sentinel succeeds and reports
unchanged.

Examples:

    seclab onboard-sentinel
`

// NewOnboardSentinelCommand returns a command that onboards Sentinel.
func NewOnboardSentinelCommand() cmd.Command {
	return &onboardSentinelCommand{}
}

type onboardSentinelCommand struct {
	sentinelCommandBase
}

// Info implements cmd.Command.
func (c *onboardSentinelCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "onboard-sentinel",
		Purpose: "Enable Sentinel on the lab workspace.",
		Doc:     onboardSentinelDoc,
	}
}

// Init implements cmd.Command.
func (c *onboardSentinelCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *onboardSentinelCommand) Run(ctx *cmd.Context) error {
	client, err := c.Sentinel(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would onboard Sentinel")
		return nil
	}
	onboarded, err := client.Onboard(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if onboarded {
		ctx.Infof("Sentinel onboarded")
	} else {
		ctx.Infof("Sentinel unchanged")
	}
	return nil
}

// NewSentinelStatusCommand returns a command that reports Sentinel
// status.
func NewSentinelStatusCommand() cmd.Command {
	return &sentinelStatusCommand{}
}

type sentinelStatusCommand struct {
	sentinelCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *sentinelStatusCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "sentinel-status",
		Purpose: "Show whether Sentinel is enabled and what rules it runs.",
	}
}

// SetFlags implements cmd.Command.
func (c *sentinelStatusCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init implements cmd.Command.
func (c *sentinelStatusCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

type sentinelStatus struct {
	Onboarded bool            `json:"onboarded" yaml:"onboarded"`
	Rules     []sentinel.Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Run implements cmd.Command.
func (c *sentinelStatusCommand) Run(ctx *cmd.Context) error {
	client, err := c.Sentinel(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	onboarded, err := client.Onboarded(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	status := sentinelStatus{Onboarded: onboarded}
	if onboarded {
		rules, err := client.ScheduledRules(ctx)
		if err != nil {
			return errors.Trace(err)
		}
		status.Rules = rules
	}
	return c.out.Write(ctx, status)
}

const addAnalyticsRuleDoc = `
Creates a scheduled analytics rule on the lab's Sentinel workspace.

The rule runs the given KQL query every hour over the last hour and
fires when results exceed the threshold. A rule with the same display
name already present is reported as unchanged.

Examples:

    seclab add-analytics-rule "Failed sign-ins" --query "SigninLogs | where ResultType != 0" --severity Medium
`

// NewAddAnalyticsRuleCommand returns a command that creates an analytics
// rule.
func NewAddAnalyticsRuleCommand() cmd.Command {
	return &addAnalyticsRuleCommand{}
}

type addAnalyticsRuleCommand struct {
	sentinelCommandBase
	name        string
	description string
	severity    string
	query       string
	frequency   string
	period      string
	threshold   int
	disabled    bool
}

// Info implements cmd.Command.
func (c *addAnalyticsRuleCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "add-analytics-rule",
		Args:    "<display-name>",
		Purpose: "Create a scheduled analytics rule.",
		Doc:     addAnalyticsRuleDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *addAnalyticsRuleCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.StringVar(&c.query, "query", "", "KQL query the rule runs")
	f.StringVar(&c.severity, "severity", "Medium", "Alert severity: High, Medium, Low or Informational")
	f.StringVar(&c.description, "description", "", "Description of the rule")
	f.StringVar(&c.frequency, "frequency", "", "How often the rule runs, as an ISO 8601 duration")
	f.StringVar(&c.period, "period", "", "How far back the query looks, as an ISO 8601 duration")
	f.IntVar(&c.threshold, "threshold", 0, "Result count above which the rule fires")
	f.BoolVar(&c.disabled, "disabled", false, "Create the rule without enabling it")
}

// Init implements cmd.Command.
func (c *addAnalyticsRuleCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no rule name specified")
	}
	c.name = name
	return nil
}

// Run implements cmd.Command.
func (c *addAnalyticsRuleCommand) Run(ctx *cmd.Context) error {
	client, err := c.Sentinel(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would create analytics rule %s", c.name)
		return nil
	}
	created, err := client.AddScheduledRule(ctx, sentinel.ScheduledRuleArgs{
		DisplayName: c.name,
		Description: c.description,
		Severity:    c.severity,
		Query:       c.query,
		Frequency:   c.frequency,
		Period:      c.period,
		Threshold:   c.threshold,
		Enabled:     !c.disabled,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("%s: %s", c.name, changed(created))
	return nil
}

// NewListConnectorsCommand returns a command that lists data connectors.
func NewListConnectorsCommand() cmd.Command {
	return &listConnectorsCommand{}
}

type listConnectorsCommand struct {
	sentinelCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *listConnectorsCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "list-connectors",
		Purpose: "List the workspace's Sentinel data connectors.",
	}
}

// SetFlags implements cmd.Command.
func (c *listConnectorsCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init implements cmd.Command.
func (c *listConnectorsCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *listConnectorsCommand) Run(ctx *cmd.Context) error {
	client, err := c.Sentinel(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	connectors, err := client.Connectors(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, connectors)
}
