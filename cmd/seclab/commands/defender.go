// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/defender"
	"github.com/seclab/seclab/internal/output"
)

const enableDefenderDoc = `
Enables Microsoft Defender for Cloud plans on the lab subscription.

The plans listed in the parameters file are enabled; when the file names
none, the default lab set is used. Plans already on the Standard tier are
left alone and reported as unchanged. A plan that fails to enable does
not stop the remaining plans from being attempted.

Examples:

    seclab enable-defender
    seclab enable-defender --whatif
`

// NewEnableDefenderCommand returns a command that enables Defender plans.
func NewEnableDefenderCommand() cmd.Command {
	return &enableDefenderCommand{}
}

type enableDefenderCommand struct {
	labCommandBase
}

// Info implements cmd.Command.
func (c *enableDefenderCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "enable-defender",
		Purpose: "Enable Defender for Cloud plans on the lab subscription.",
		Doc:     enableDefenderDoc,
	}
}

// Init implements cmd.Command.
func (c *enableDefenderCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *enableDefenderCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.Config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	plans := cfg.DefenderPlans()
	if len(plans) == 0 {
		plans = defender.DefaultPlans
	}
	client := defender.NewClient(session)

	var failed int
	for _, plan := range plans {
		if c.WhatIf() {
			ctx.Infof("would enable plan %s", plan)
			continue
		}
		enabled, err := client.EnablePlan(ctx, plan)
		if err != nil {
			ctx.Errorf("plan %s: %v", plan, err)
			failed++
			continue
		}
		if enabled {
			ctx.Infof("plan %s enabled", plan)
		} else {
			ctx.Infof("plan %s unchanged", plan)
		}
	}
	if failed > 0 {
		return errors.Errorf("%d of %d plans failed to enable", failed, len(plans))
	}
	return nil
}

// NewShowDefenderPlansCommand returns a command that lists Defender plan
// states.
func NewShowDefenderPlansCommand() cmd.Command {
	return &showDefenderPlansCommand{}
}

type showDefenderPlansCommand struct {
	labCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *showDefenderPlansCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "show-defender-plans",
		Purpose: "Show the pricing tier of every Defender for Cloud plan.",
	}
}

// SetFlags implements cmd.Command.
func (c *showDefenderPlansCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "tabular", map[string]cmd.Formatter{
		"tabular": byteFormatter(c.formatTabular),
		"yaml":    cmd.FormatYaml,
		"json":    cmd.FormatJson,
	})
}

// Init implements cmd.Command.
func (c *showDefenderPlansCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *showDefenderPlansCommand) Run(ctx *cmd.Context) error {
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	plans, err := defender.NewClient(session).Plans(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, plans)
}

func (c *showDefenderPlansCommand) formatTabular(writer io.Writer, value interface{}) error {
	plans, ok := value.([]defender.Plan)
	if !ok {
		return errors.Errorf("expected value of type %T, got %T", plans, value)
	}
	tw := output.TabWriter(writer)
	w := output.Wrapper{TabWriter: tw}
	w.Println("PLAN", "TIER", "SUBPLAN")
	for _, plan := range plans {
		w.Print(plan.Name)
		if plan.Tier == "Standard" {
			w.PrintColor(output.GoodHighlight, plan.Tier)
		} else {
			w.Print(plan.Tier)
		}
		w.Println(plan.SubPlan)
	}
	return tw.Flush()
}

const addJITDoc = `
Creates just-in-time network access policies for lab virtual machines.

Each named VM gets a policy covering its management ports: RDP and WinRM
for Windows, SSH for Linux. When no VM is named, every VM in the lab
resource group is covered. VMs already covered are reported as unchanged.

Examples:

    seclab add-jit
    seclab add-jit dc01 web01
`

// NewAddJITCommand returns a command that creates JIT policies.
func NewAddJITCommand() cmd.Command {
	return &addJITCommand{}
}

type addJITCommand struct {
	labCommandBase
	vms []string
}

// Info implements cmd.Command.
func (c *addJITCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "add-jit",
		Args:    "[<vm-name> ...]",
		Purpose: "Create just-in-time access policies for lab VMs.",
		Doc:     addJITDoc,
	}
}

// Init implements cmd.Command.
func (c *addJITCommand) Init(args []string) error {
	c.vms = args
	return nil
}

// Run implements cmd.Command.
func (c *addJITCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.Config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	client := defender.NewClient(session)
	vmClient, err := session.VirtualMachines()
	if err != nil {
		return errors.Trace(err)
	}
	rg := cfg.ResourceGroup()

	names := c.vms
	if len(names) == 0 {
		pager := vmClient.NewListPager(rg, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return errors.Annotatef(err, "listing VMs in %q", rg)
			}
			for _, vm := range page.Value {
				if vm != nil && vm.Name != nil {
					names = append(names, *vm.Name)
				}
			}
		}
		if len(names) == 0 {
			return errors.NotFoundf("VMs in resource group %q", rg)
		}
	}

	var failed int
	for _, name := range names {
		resp, err := vmClient.Get(ctx, rg, name, nil)
		if err != nil {
			ctx.Errorf("%s: %v", name, err)
			failed++
			continue
		}
		if c.WhatIf() {
			ctx.Infof("would ensure JIT policy for %s", name)
			continue
		}
		created, err := client.EnsureJITPolicy(ctx, rg, &resp.VirtualMachine)
		if err != nil {
			ctx.Errorf("%s: %v", name, err)
			failed++
			continue
		}
		ctx.Infof("%s: %s", name, changed(created))
	}
	if failed > 0 {
		return errors.Errorf("%d of %d VMs failed", failed, len(names))
	}
	return nil
}

// NewListJITCommand returns a command that lists JIT policies.
func NewListJITCommand() cmd.Command {
	return &listJITCommand{}
}

type listJITCommand struct {
	labCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *listJITCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "list-jit",
		Purpose: "List just-in-time access policies on the lab subscription.",
	}
}

// SetFlags implements cmd.Command.
func (c *listJITCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init implements cmd.Command.
func (c *listJITCommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

// Run implements cmd.Command.
func (c *listJITCommand) Run(ctx *cmd.Context) error {
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	policies, err := defender.NewClient(session).JITPolicies(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	return c.out.Write(ctx, policies)
}

const requestJITDoc = `
Requests just-in-time access to a lab VM's management ports.

The request opens every port the VM's JIT policy manages, from the given
source address, for the given ISO 8601 duration. Without --duration the
policy maximum of three hours is requested.

Examples:

    seclab request-jit dc01 --source 203.0.113.7 --duration PT1H
`

// NewRequestJITCommand returns a command that requests JIT access.
func NewRequestJITCommand() cmd.Command {
	return &requestJITCommand{}
}

type requestJITCommand struct {
	labCommandBase
	vmName        string
	source        string
	duration      string
	justification string
}

// Info implements cmd.Command.
func (c *requestJITCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "request-jit",
		Args:    "<vm-name>",
		Purpose: "Request just-in-time access to a lab VM.",
		Doc:     requestJITDoc,
	}
}

// SetFlags implements cmd.Command.
func (c *requestJITCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.StringVar(&c.source, "source", "", "Source address to allow; empty allows any")
	f.StringVar(&c.duration, "duration", "", "Access duration as an ISO 8601 duration")
	f.StringVar(&c.justification, "justification", "", "Reason recorded with the request")
}

// Init implements cmd.Command.
func (c *requestJITCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no VM name specified")
	}
	c.vmName = name
	return nil
}

// Run implements cmd.Command.
func (c *requestJITCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.Config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	vmClient, err := session.VirtualMachines()
	if err != nil {
		return errors.Trace(err)
	}
	rg := cfg.ResourceGroup()
	resp, err := vmClient.Get(ctx, rg, c.vmName, nil)
	if err != nil {
		return errors.Annotatef(err, "fetching VM %q", c.vmName)
	}
	if resp.ID == nil || resp.Location == nil {
		return errors.Errorf("VM %q has no id or location", c.vmName)
	}
	if c.WhatIf() {
		ctx.Infof("would request JIT access to %s", c.vmName)
		return nil
	}
	err = defender.NewClient(session).RequestAccess(ctx, defender.AccessRequest{
		ResourceGroup: rg,
		Location:      *resp.Location,
		PolicyName:    c.vmName,
		VMID:          *resp.ID,
		SourceAddress: c.source,
		Duration:      c.duration,
		Justification: c.justification,
	})
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("access requested for %s", c.vmName)
	return nil
}

// NewRemoveJITCommand returns a command that removes a JIT policy.
func NewRemoveJITCommand() cmd.Command {
	return &removeJITCommand{}
}

type removeJITCommand struct {
	labCommandBase
	vmName string
	force  bool
}

// Info implements cmd.Command.
func (c *removeJITCommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "remove-jit",
		Args:    "<vm-name>",
		Purpose: "Remove the just-in-time access policy of a lab VM.",
	}
}

// SetFlags implements cmd.Command.
func (c *removeJITCommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	f.BoolVar(&c.force, "force", false, "Do not ask for confirmation")
}

// Init implements cmd.Command.
func (c *removeJITCommand) Init(args []string) error {
	name, err := cmd.ZeroOrOneArgs(args)
	if err != nil {
		return errors.Trace(err)
	}
	if name == "" {
		return errors.New("no VM name specified")
	}
	c.vmName = name
	return nil
}

// Run implements cmd.Command.
func (c *removeJITCommand) Run(ctx *cmd.Context) error {
	cfg, err := c.Config(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	vmClient, err := session.VirtualMachines()
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := vmClient.Get(ctx, cfg.ResourceGroup(), c.vmName, nil)
	if err != nil {
		return errors.Annotatef(err, "fetching VM %q", c.vmName)
	}
	if resp.Location == nil {
		return errors.Errorf("VM %q has no location", c.vmName)
	}
	if c.WhatIf() {
		ctx.Infof("would remove JIT policy for %s", c.vmName)
		return nil
	}
	if !c.force && !confirm(ctx, fmt.Sprintf("remove JIT policy for %s?", c.vmName)) {
		return errors.New("removal aborted")
	}
	err = defender.NewClient(session).DeleteJITPolicy(ctx, cfg.ResourceGroup(), *resp.Location, c.vmName)
	if err != nil {
		return errors.Trace(err)
	}
	ctx.Infof("JIT policy for %s removed", c.vmName)
	return nil
}
