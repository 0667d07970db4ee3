// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package cmdtesting provides helpers for testing cmd.Command
// implementations against in-memory contexts.
package cmdtesting

import (
	"bytes"
	"context"
	"io"

	"github.com/juju/gnuflag"
	gc "gopkg.in/check.v1"

	"github.com/seclab/seclab/internal/cmd"
)

// NewFlagSet creates a new flag set using the standard options, particularly
// the option to stop the gnuflag methods from writing to StdErr or StdOut.
func NewFlagSet() *gnuflag.FlagSet {
	fs := gnuflag.NewFlagSetWithFlagKnownAs("", gnuflag.ContinueOnError, "option")
	fs.SetOutput(io.Discard)
	return fs
}

// InitCommand will create a new flag set, and call the Command's SetFlags and
// Init methods with the appropriate args.
func InitCommand(c cmd.Command, args []string) error {
	f := NewFlagSet()
	c.SetFlags(f)
	if err := f.Parse(c.AllowInterspersedFlags(), args); err != nil {
		return err
	}
	return c.Init(f.Args())
}

// Context creates a simple command execution context with the current
// dir set to a newly created directory within the test directory.
func Context(c *gc.C) *cmd.Context {
	return cmd.NewContext(
		context.Background(), c.MkDir(),
		&bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{},
	)
}

// RunCommand runs a command with the specified args.
func RunCommand(c *gc.C, com cmd.Command, args ...string) (*cmd.Context, error) {
	if err := InitCommand(com, args); err != nil {
		ctx := Context(c)
		cmd.WriteError(ctx.Stderr, err)
		return ctx, err
	}
	ctx := Context(c)
	return ctx, com.Run(ctx)
}

// RunCommandInDir works like RunCommand, but runs with a context that uses dir.
func RunCommandInDir(c *gc.C, com cmd.Command, args []string, dir string) (*cmd.Context, error) {
	if err := InitCommand(com, args); err != nil {
		return nil, err
	}
	ctx := ContextForDir(c, dir)
	return ctx, com.Run(ctx)
}

// ContextForDir creates a simple command execution context with the current
// dir set to the specified directory.
func ContextForDir(c *gc.C, dir string) *cmd.Context {
	return cmd.NewContext(
		context.Background(), dir,
		&bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{},
	)
}

// Stdout takes a command Context that we assume has been created in this
// package, and gets the content of the Stdout buffer.
func Stdout(ctx *cmd.Context) string {
	return ctx.Stdout.(*bytes.Buffer).String()
}

// Stderr takes a command Context that we assume has been created in this
// package, and gets the content of the Stderr buffer.
func Stderr(ctx *cmd.Context) string {
	return ctx.Stderr.(*bytes.Buffer).String()
}

// HelpText returns a command's formatted help text.
func HelpText(command cmd.Command, name string) string {
	buff := &bytes.Buffer{}
	info := command.Info()
	info.Name = name
	f := gnuflag.NewFlagSetWithFlagKnownAs(info.Name, gnuflag.ContinueOnError, cmd.FlagAlias(command, "option"))
	command.SetFlags(f)
	buff.Write(info.Help(f))
	return buff.String()
}
