// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package commands

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/seclab/seclab/internal/azure"
	"github.com/seclab/seclab/internal/cmd"
	"github.com/seclab/seclab/internal/labconfig"
)

var logger = loggo.GetLogger("seclab.commands")

const defaultParametersFile = "seclab.json"

// byteFormatter adapts a writer-based formatter to cmd.Formatter.
func byteFormatter(format func(io.Writer, interface{}) error) cmd.Formatter {
	return func(value interface{}) ([]byte, error) {
		var buf bytes.Buffer
		if err := format(&buf, value); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}

// newSessionFunc opens a management plane session for a lab config.
// Tests swap it for one backed by a mock transport.
type newSessionFunc func(*labconfig.Config) (*azure.Session, error)

// labCommandBase is the base for every command that talks to the lab's
// subscription or tenant. It loads the parameters file and opens the
// session lazily, so help and argument errors never touch the network.
type labCommandBase struct {
	cmd.CommandBase

	paramsFile string
	whatIf     bool

	config     *labconfig.Config
	session    *azure.Session
	newSession newSessionFunc
}

// SetFlags implements cmd.Command.
func (c *labCommandBase) SetFlags(f *gnuflag.FlagSet) {
	c.CommandBase.SetFlags(f)
	f.StringVar(&c.paramsFile, "parameters-file", defaultParametersFile, "Path to the lab parameters file")
	f.BoolVar(&c.whatIf, "whatif", false, "Report what would change without changing anything")
}

// WhatIf reports whether the command runs in preview mode.
func (c *labCommandBase) WhatIf() bool {
	return c.whatIf
}

// Config loads and caches the lab parameters file.
func (c *labCommandBase) Config(ctx *cmd.Context) (*labconfig.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	cfg, err := labconfig.Read(ctx.AbsPath(c.paramsFile))
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.config = cfg
	return cfg, nil
}

// Session opens and caches the management plane session.
func (c *labCommandBase) Session(ctx *cmd.Context) (*azure.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	cfg, err := c.Config(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	open := c.newSession
	if open == nil {
		open = func(cfg *labconfig.Config) (*azure.Session, error) {
			return azure.NewSession(azure.SessionParams{
				SubscriptionID: cfg.SubscriptionID(),
				TenantID:       cfg.TenantID(),
				Clock:          clock.WallClock,
			})
		}
	}
	session, err := open(cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.session = session
	return session, nil
}

// confirm asks before a destructive operation. EOF on stdin counts as
// no, so piped invocations abort rather than hang.
func confirm(ctx *cmd.Context, prompt string) bool {
	fmt.Fprintf(ctx.Stdout, "%s (y/N) ", prompt)
	scanner := bufio.NewScanner(ctx.Stdin)
	if !scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return answer == "y" || answer == "yes"
}

// changed turns a created/changed flag into the word commands print, so
// idempotent reruns read "unchanged" instead of pretending to act.
func changed(did bool) string {
	if did {
		return "created"
	}
	return "unchanged"
}
