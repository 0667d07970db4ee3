// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/seclab/seclab/internal/cmd"
)

// NewWhoAmICommand returns a command that shows the session's
// subscription, verifying the credential works.
func NewWhoAmICommand() cmd.Command {
	return &whoAmICommand{}
}

type whoAmICommand struct {
	labCommandBase
	out cmd.Output
}

// Info implements cmd.Command.
func (c *whoAmICommand) Info() *cmd.Info {
	return &cmd.Info{
		Name:    "whoami",
		Purpose: "Show the subscription the tool is operating on.",
		Doc: `
Fetches the lab subscription using the signed-in credential, confirming
both that the credential works and that it can see the subscription from
the parameters file.
`,
	}
}

// SetFlags implements cmd.Command.
func (c *whoAmICommand) SetFlags(f *gnuflag.FlagSet) {
	c.labCommandBase.SetFlags(f)
	c.out.AddFlags(f, "yaml", cmd.DefaultFormatters)
}

// Init implements cmd.Command.
func (c *whoAmICommand) Init(args []string) error {
	return cmd.CheckEmpty(args)
}

type whoAmIResult struct {
	SubscriptionID string `json:"subscription-id" yaml:"subscription-id"`
	DisplayName    string `json:"display-name,omitempty" yaml:"display-name,omitempty"`
	State          string `json:"state,omitempty" yaml:"state,omitempty"`
	TenantID       string `json:"tenant-id,omitempty" yaml:"tenant-id,omitempty"`
}

// Run implements cmd.Command.
func (c *whoAmICommand) Run(ctx *cmd.Context) error {
	session, err := c.Session(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	sub, err := session.CurrentSubscription(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	result := whoAmIResult{
		SubscriptionID: session.SubscriptionID(),
		TenantID:       session.TenantID(),
	}
	if sub.DisplayName != nil {
		result.DisplayName = *sub.DisplayName
	}
	if sub.State != nil {
		result.State = string(*sub.State)
	}
	return c.out.Write(ctx, result)
}
