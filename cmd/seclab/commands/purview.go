// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/purview"
)

// purviewCommandBase opens the compliance client on top of the lab
// session.
type purviewCommandBase struct {
	labCommandBase
	client *purview.Client
}

func (c *purviewCommandBase) Purview(ctx *cmd.Context) (*purview.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	session, err := c.Session(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.client = purview.NewClient(session, policy.ClientOptions{})
	return c.client, nil
}

const addRetentionLabelDoc = `
Creates a retention label (compliance tag) retaining content for one of
the named lab periods: 1-year, 3-years, 7-years or 10-years.

A label with the same display name already present is left untouched and
reported as unchanged.

Examples:

    seclab add-retention-label "Case Evidence" --period 7-years --delete-after
`

// NewAddRetentionLabelCommand returns a command that creates a retention
// label.
func NewAddRetentionLabelCommand() cmd.Command {
	return &addRetentionLabelCommand{}
}

type addRetentionLabelCommand struct {
	purviewCommandBase
	name        string
	period      string
	deleteAfter bool
	description string
}

// Info implements cmd.Command.
func (c *addRetentionLabelCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "add-retention-label",
		Args:    "<display-name>",
		Purpose: "Create a retention label.",
		Doc:     addRetentionLabelDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *addRetentionLabelCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.StringVar(&c.period, "period", "1-year", "Named retention period")
	f.BoolVar(&c.deleteAfter, "delete-after", false, "Delete content when the period ends")
	f.StringVar(&c.description, "description", "", "Description shown to admins")
}

// Init implements cmd.Command.
func (c *addRetentionLabelCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no label name specified")
	}
	c.name = name
	return nil
}

// Run implements cmd.Command.
func (c *addRetentionLabelCommand) Run(ctx *cmd.Context) error {
	client, err := c.Purview(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would create retention label %s (%s)", c.name, c.period)
		return nil
	}
	label, created, err := client.AddRetentionLabel(ctx, purview.RetentionLabelArgs{
		DisplayName: c.name,
		Period:      c.period,
		DeleteAfter: c.deleteAfter,
		Description: c.description,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("%s: %s (%d days)", label.DisplayName, changed(created), label.Days)
	return nil
}

// NewListRetentionLabelsCommand returns a command that lists retention
// labels.
func NewListRetentionLabelsCommand() cmd.Command {
	return &listRetentionLabelsCommand{}
}

type listRetentionLabelsCommand struct {
	purviewCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *listRetentionLabelsCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "list-retention-labels",
		Purpose: "List the tenant's retention labels.",
	}
}

// SetFlags implements cmd.Command.
func (c *listRetentionLabelsCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init implements cmd.Command.
func (c *listRetentionLabelsCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *listRetentionLabelsCommand) Run(ctx *cmd.Context) error {
	client, err := c.Purview(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	labels, err := client.RetentionLabels(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, labels)
}

const addSITDoc = `
Creates a custom sensitive information type matching a regular
expression, for example a case number or badge id format used in lab
exercises.

Examples:

    seclab add-sit "Case Number" --pattern "CASE-[0-9]{6}" --confidence 85
`

// NewAddSITCommand returns a command that creates a custom sensitive
// information type.
func NewAddSITCommand() cmd.Command {
	return &addSITCommand{}
}

type addSITCommand struct {
	purviewCommandBase
	name        string
	description string
	pattern     string
	confidence  int
}

// Info implements cmd.Command.
func (c *addSITCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "add-sit",
		Args:    "<name>",
		Purpose: "Create a custom sensitive information type.",
		Doc:     addSITDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *addSITCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.StringVar(&c.pattern, "pattern", "", "Regular expression the classifier matches")
	f.StringVar(&c.description, "description", "", "Description of the type")
	f.IntVar(&c.confidence, "confidence", 85, "Match confidence in percent")
}

// Init implements cmd.Command.
func (c *addSITCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no type name specified")
	}
	c.name = name
	return nil
}

// Run implements cmd.Command.
func (c *addSITCommand) Run(ctx *cmd.Context) error {
	client, err := c.Purview(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would create sensitive information type %s", c.name)
		return nil
	}
	created, err := client.AddSIT(ctx, purview.SITArgs{
		Name:            c.name,
		Description:     c.description,
		Pattern:         c.pattern,
		ConfidenceLevel: c.confidence,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("%s: %s", c.name, changed(created))
	return nil
}

const enableEDMDoc = `
Creates an exact data match store whose schema columns describe the
sensitive dataset to match against. At least one column must be
searchable.

Columns are given as name[:searchable[:case-insensitive]] where the
boolean parts default to false.

Examples:

    seclab enable-edm "Employee Records" --column employeeId:true --column lastName:true:true --column salary
`

// NewEnableEDMCommand returns a command that creates an exact data match
// store.
func NewEnableEDMCommand() cmd.Command {
	return &enableEDMCommand{}
}

type enableEDMCommand struct {
	purviewCommandBase
	name        string
	description string
	columnSpecs []string
}

// Info implements cmd.Command.
func (c *enableEDMCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "enable-edm",
		Args:    "<store-name>",
		Purpose: "Create an exact data match store.",
		Doc:     enableEDMDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *enableEDMCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.Var(cmd.NewAppendStringsValue(&c.columnSpecs), "column", "Schema column; repeatable")
	f.StringVar(&c.description, "description", "", "Description of the store")
}

// Init implements cmd.Command.
func (c *enableEDMCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no store name specified")
	}
	if len(c.columnSpecs) == 0 {
		return errors.New("at least one --column required")
	}
	c.name = name
	return nil
}

// Run implements cmd.Command.
func (c *enableEDMCommand) Run(ctx *cmd.Context) error {
	columns, err := parseEDMColumns(c.columnSpecs)
	if err != nil {
		return errors.Trace(err)
	}
	client, err := c.Purview(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would create exact data match store %s", c.name)
		return nil
	}
	created, err := client.EnableEDM(ctx, c.name, c.description, columns)
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("%s: %s", c.name, changed(created))
	return nil
}

const addDLPPolicyDoc = `
Creates a data loss prevention policy covering the given workloads,
triggering on the named sensitive information types.

The policy starts in test mode unless --enforce is given.

Examples:

    seclab add-dlp-policy "Protect case data" --location Exchange --location SharePoint --sit "Case Number"
`

// NewAddDLPPolicyCommand returns a command that creates a DLP policy.
func NewAddDLPPolicyCommand() cmd.Command {
	return &addDLPPolicyCommand{}
}

type addDLPPolicyCommand struct {
	purviewCommandBase
	name        string
	description string
	locations   []string
	sits        []string
	enforce     bool
}

// Info implements cmd.Command.
func (c *addDLPPolicyCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "add-dlp-policy",
		Args:    "<policy-name>",
		Purpose: "Create a data loss prevention policy.",
		Doc:     addDLPPolicyDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *addDLPPolicyCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.Var(cmd.NewAppendStringsValue(&c.locations), "location", "Workload the policy covers; repeatable")
	f.Var(cmd.NewAppendStringsValue(&c.sits), "sit", "Sensitive information type to trigger on; repeatable")
	f.StringVar(&c.description, "description", "", "Description of the policy")
	f.BoolVar(&c.enforce, "enforce", false, "Enforce instead of test with notifications")
}

// Init implements cmd.Command.
func (c *addDLPPolicyCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no policy name specified")
	}
	if len(c.locations) == 0 {
		return errors.New("at least one --location required")
	}
	c.name = name
	return nil
}

// Run implements cmd.Command.
func (c *addDLPPolicyCommand) Run(ctx *cmd.Context) error {
	client, err := c.Purview(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	if c.WhatIf() {
		ctx.Infof("would create DLP policy %s", c.name)
		return nil
	}
	mode := "TestWithNotifications"
	if c.enforce {
		mode = "Enable"
	}
	created, err := client.AddDLPPolicy(ctx, purview.DLPArgs{
		Name:           c.name,
		Description:    c.description,
		Mode:           mode,
		Locations:      c.locations,
		SensitiveTypes: c.sits,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("%s: %s", c.name, changed(created))
	return nil
}

func parseEDMColumns(specs []string) ([]purview.EDMColumn, error) {
	columns := make([]purview.EDMColumn, 0, len(specs))
	for _, spec := range specs {
		column, err := parseEDMColumn(spec)
		if err != nil {
			return nil, errors.Trace(err)
		}
		columns = append(columns, column)
	}
	return columns, nil
}

func parseEDMColumn(spec string) (purview.EDMColumn, error) {
	parts := strings.Split(spec, ":")
	if parts[0] == "" {
		return purview.EDMColumn{}, errors.NotValidf("column spec %q", spec)
	}
	column := purview.EDMColumn{Name: parts[0]}
	for i, target := range []*bool{&column.Searchable, &column.CaseInsensitive} {
		if len(parts) <= i+1 {
			break
		}
		switch parts[i+1] {
		case "true":
			*target = true
		case "false", "":
		default:
			return purview.EDMColumn{}, errors.NotValidf("column spec %q", spec)
		}
	}
	return column, nil
}
