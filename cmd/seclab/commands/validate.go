// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"io"
	"os"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/defender"
	"github.com/seclab/seclab/internal/output"
	"github.com/seclab/seclab/internal/report"
)

const validateDoc = `
Checks the security posture of the lab and prints a per-check report.

The lab resource group is checked for existence, then every VM in it for
provisioning state, power state, NSG attachment and JIT coverage, along
with the subscription's Defender plan. A failing check is recorded and
the walk continues; the command exits non-zero when any check failed.

With --csv the report is also written to a file for grading.

Examples:

    seclab validate
    seclab validate --csv report.csv --format json
`

// NewValidateCommand returns a command that validates the lab posture.
func NewValidateCommand() cmd.Command {
	return &validateCommand{}
}

type validateCommand struct {
	labCommandBase
	out     cmd.Output
	csvPath string
}

// Info implements cmd.Command.
func (c *validateCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "validate",
		Purpose: "Check the security posture of the lab.",
		Doc:     validateDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *validateCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.StringVar(&c.csvPath, "csv", "", "Also write the report to this CSV file")
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"tabular": byteFormatter(formatReportTabular),
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
	})
}

// Init implements cmd.Command.
func (c *validateCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *validateCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.Config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	summary := report.NewSummary(session.Clock().Now().UTC())
	rg := cfg.ResourceGroup()
	if c.checkResourceGroup(ctx, session, rg, summary) {
		if err := defender.NewClient(session).ValidateVMs(ctx, rg, summary); err != nil {
			return errors.Trace(err)
		}
	}
	if err := c.out.Write(ctx, summary); err != nil {
		return errors.Trace(err)
	}
	if c.csvPath != "" {
		if err := writeCSVReport(ctx.AbsPath(c.csvPath), summary); err != nil {
			return errors.Trace(err)
		}
		ctx.Infof("report written to %s", c.csvPath)
	}
	if !summary.Ok() {
		return errors.Errorf("%d of %d checks failed", summary.Failed, len(summary.Results))
	}
	return nil
}

// checkResourceGroup records whether the lab resource group exists and
// reports whether the per-VM checks are worth running.
func (c *validateCommand) checkResourceGroup(ctx *cmd.Context, session *azure.Session, rg string, summary *report.Summary) bool {
	groups, err := session.ResourceGroups()
	if err != nil {
		summary.Fail(rg, "resource-group", err.Error())
		return false
	}
	resp, err := groups.CheckExistence(ctx, rg, nil)
	if err != nil {
		summary.Fail(rg, "resource-group", err.Error())
		return false
	}
	if !resp.Success {
		summary.Fail(rg, "resource-group", "resource group not found")
		return false
	}
	summary.Pass(rg, "resource-group", "exists")
	return true
}

func writeCSVReport(path string, summary *report.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	return errors.Trace(summary.WriteCSV(f))
}

func formatReportTabular(writer io.Writer, value interface{}) error {
	summary, ok := value.(*report.Summary)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", summary, value)
	}
	tw := output.TabWriter(writer)
	w := output.Wrapper{TabWriter: tw}
	w.Println("RESOURCE", "CHECK", "STATUS", "DETAIL")
	for _, r := range summary.Results {
		w.Print(r.Resource, r.Check)
		w.PrintStatus(string(r.Status))
		w.Println(r.Detail)
	}
	w.Println()
	w.Print("passed", summary.Passed)
	w.Print("warned", summary.Warned)
	w.Println("failed", summary.Failed)
	return tw.Flush()
}
