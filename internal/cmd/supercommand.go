// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("seclab.cmd")

type topic struct {
	short string
	long  func() string
	// Help aliases are not output when topics are listed, but are used
	// to search for the help topic.
	alias bool
}

// FlagAdder represents a value that has associated flags.
type FlagAdder interface {
	// AddFlags adds the value's flags to the given flag set.
	AddFlags(*gnuflag.FlagSet)
}

// SuperCommandParams provides a way to have default parameter to the
// NewSuperCommand call.
type SuperCommandParams struct {
	// UsagePrefix should be set when the SuperCommand is
	// actually a subcommand of some other SuperCommand.
	UsagePrefix string

	// NotifyRun, if not nil, is called when the SuperCommand
	// is about to run a sub-command.
	NotifyRun func(cmdName string)

	Name     string
	Purpose  string
	Doc      string
	Examples string

	// Log holds the Log value associated with the supercommand. If it's nil,
	// no logging flags will be configured.
	Log *Log

	// GlobalFlags specifies a value that can add more global flags to the
	// supercommand which will also be available on all subcommands.
	GlobalFlags FlagAdder

	Aliases []string
	Version string

	// FlagKnownAs allows different projects to customise what their flags are
	// known as, e.g. 'flag', 'option'.
	FlagKnownAs string
}

// NewSuperCommand creates and initializes a new SuperCommand, and returns
// the fully initialized structure.
func NewSuperCommand(params SuperCommandParams) *SuperCommand {
	command := &SuperCommand{
		Name:     params.Name,
		Purpose:  params.Purpose,
		Doc:      params.Doc,
		Examples: params.Examples,
		Log:      params.Log,
		Aliases:  params.Aliases,

		globalFlags: params.GlobalFlags,
		usagePrefix: params.UsagePrefix,
		version:     params.Version,
		notifyRun:   params.NotifyRun,
		FlagKnownAs: params.FlagKnownAs,
	}
	command.init()
	return command
}

type commandReference struct {
	name    string
	command Command
	alias   string
}

// SuperCommand is a Command that selects a subcommand and assumes its
// properties; any command line arguments that were not used in selecting
// the subcommand are passed down to it, and to Run a SuperCommand is to run
// its selected subcommand.
type SuperCommand struct {
	CommandBase
	Name     string
	Purpose  string
	Doc      string
	Examples string
	Log      *Log
	Aliases  []string

	globalFlags FlagAdder
	version     string
	usagePrefix string
	subcmds     map[string]commandReference
	help        *helpCommand
	commonflags *gnuflag.FlagSet
	flags       *gnuflag.FlagSet
	action      commandReference
	showHelp    bool
	showVersion bool
	notifyRun   func(string)

	// FlagKnownAs allows different projects to customise what their flags are
	// known as, e.g. 'flag', 'option'.
	FlagKnownAs string
}

// IsSuperCommand implements Command.IsSuperCommand
func (c *SuperCommand) IsSuperCommand() bool {
	return true
}

func (c *SuperCommand) init() {
	if c.subcmds != nil {
		return
	}
	if c.FlagKnownAs == "" {
		c.FlagKnownAs = "flag"
	}
	c.help = &helpCommand{super: c}
	c.help.init()
	c.subcmds = map[string]commandReference{
		"help": {command: c.help},
	}
	if c.version != "" {
		c.subcmds["version"] = commandReference{
			command: newVersionCommand(c.version),
		}
	}
}

// AddHelpTopic adds a new help topic with the description being the short
// param, and the full text being the long param. The description is shown in
// 'help topics', and the full text is shown when the command 'help <name>' is
// called.
func (c *SuperCommand) AddHelpTopic(name, short, long string, aliases ...string) {
	c.help.addTopic(name, short, echo(long), aliases...)
}

// Register makes a subcommand available for use on the command line. The
// command will be available via its own name, and via any supplied aliases.
func (c *SuperCommand) Register(subcmd Command) {
	info := subcmd.Info()
	c.insert(commandReference{name: info.Name, command: subcmd})
	for _, name := range info.Aliases {
		c.insert(commandReference{name: name, command: subcmd, alias: info.Name})
	}
}

func (c *SuperCommand) insert(value commandReference) {
	if _, found := c.subcmds[value.name]; found {
		panic(fmt.Sprintf("command already registered: %q", value.name))
	}
	c.subcmds[value.name] = value
}

// describeCommands returns a short description of each registered subcommand.
func (c *SuperCommand) describeCommands() map[string]string {
	result := make(map[string]string, len(c.subcmds))
	for name, action := range c.subcmds {
		info := action.command.Info()
		purpose := info.Purpose
		if action.alias != "" {
			purpose = "Alias for '" + action.alias + "'."
		}
		result[name] = purpose
	}
	return result
}

// Info returns a description of the currently selected subcommand, or of the
// SuperCommand itself if no subcommand has been specified.
func (c *SuperCommand) Info() *Info {
	if c.action.command != nil {
		info := *c.action.command.Info()
		info.Name = fmt.Sprintf("%s %s", c.Name, info.Name)
		info.FlagKnownAs = c.FlagKnownAs
		return &info
	}
	return &Info{
		Name:        c.Name,
		Args:        "<command> ...",
		Purpose:     c.Purpose,
		Doc:         strings.TrimSpace(c.Doc),
		Subcommands: c.describeCommands(),
		Examples:    c.Examples,
		Aliases:     c.Aliases,
		FlagKnownAs: c.FlagKnownAs,
	}
}

const helpPurpose = "Show help on a command or other topic."

// SetCommonFlags creates a new "commonflags" flagset, whose
// flags are shared with the argument f; this enables us to
// add non-global flags to f, which do not carry into subcommands.
func (c *SuperCommand) SetCommonFlags(f *gnuflag.FlagSet) {
	if c.Log != nil {
		c.Log.AddFlags(f)
	}
	if c.globalFlags != nil {
		c.globalFlags.AddFlags(f)
	}
	f.BoolVar(&c.showHelp, "h", false, helpPurpose)
	f.BoolVar(&c.showHelp, "help", false, "")
	c.commonflags = gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, FlagAlias(c, "flag"))
	c.commonflags.SetOutput(io.Discard)
	f.VisitAll(func(flag *gnuflag.Flag) {
		c.commonflags.Var(flag.Value, flag.Name, flag.Usage)
	})
}

// SetFlags adds the options that apply to all commands, particularly those
// due to logging.
func (c *SuperCommand) SetFlags(f *gnuflag.FlagSet) {
	c.SetCommonFlags(f)
	// Only flags set by SetCommonFlags are passed on to subcommands.
	// Any flags added below only take effect when no subcommand is
	// specified (e.g. seclab --version).
	if c.version != "" {
		f.BoolVar(&c.showVersion, "version", false, "Show the command's version and exit")
	}
	c.flags = f
}

// AllowInterspersedFlags is false for a SuperCommand: the args may contain
// other options that haven't been defined yet, and only options that relate
// to the SuperCommand itself can come prior to the subcommand name.
func (c *SuperCommand) AllowInterspersedFlags() bool {
	return false
}

// Init initializes the command for running.
func (c *SuperCommand) Init(args []string) error {
	if len(args) == 0 {
		c.action = c.subcmds["help"]
		if c.showVersion {
			c.action = c.subcmds["version"]
		}
		return c.action.command.Init(nil)
	}

	found := false
	if c.action, found = c.subcmds[args[0]]; !found {
		if closest, ok := c.findClosestSubCommand(args[0]); ok {
			return errors.Errorf("unrecognized command: %s %s\nDid you mean:\n\t%s %s", c.Name, args[0], c.Name, closest)
		}
		return errors.Errorf("unrecognized command: %s %s", c.Name, args[0])
	}

	cleanArgs := make([]string, len(args[1:]))
	copy(cleanArgs, args[1:])
	subcmd := c.action.command
	if subcmd.IsSuperCommand() {
		f := gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, FlagAlias(subcmd, "flag"))
		f.SetOutput(io.Discard)
		subcmd.SetFlags(f)
	} else {
		subcmd.SetFlags(c.commonflags)
	}
	if err := c.commonflags.Parse(subcmd.AllowInterspersedFlags(), cleanArgs); err != nil {
		return err
	}

	cleanArgs = c.commonflags.Args()
	if c.showHelp {
		// We want to treat help for the command the same way we would if
		// we went "help foo".
		cleanArgs = []string{c.action.name}
		c.action = c.subcmds["help"]
	}
	return c.action.command.Init(cleanArgs)
}

// Run executes the subcommand that was selected in Init.
func (c *SuperCommand) Run(ctx *Context) error {
	if c.action.command == nil {
		panic("Run: missing subcommand; Init failed or not called")
	}
	if c.Log != nil {
		if err := c.Log.Start(ctx); err != nil {
			return err
		}
	}
	if c.notifyRun != nil {
		name := c.Name
		if c.usagePrefix != "" && c.usagePrefix != name {
			name = c.usagePrefix + " " + name
		}
		c.notifyRun(name)
	}
	err := c.action.command.Run(ctx)
	if err != nil && !IsErrSilent(err) {
		WriteError(ctx.Stderr, err)
		logger.Debugf("error stack: \n%v", errors.ErrorStack(err))
		// Err has been logged above, we can make the err silent so it does
		// not print again in cmd/main.
		if !IsRcPassthroughError(err) {
			err = ErrSilent
		}
	} else {
		logger.Infof("command finished")
	}
	return err
}

// findClosestSubCommand attempts to find a subcommand by a given name, to
// suggest a correction for a mistyped command name.
func (c *SuperCommand) findClosestSubCommand(name string) (string, bool) {
	type indexed struct {
		name  string
		value int
	}
	matches := make([]indexed, 0, len(c.subcmds))
	for cmdName := range c.subcmds {
		matches = append(matches, indexed{
			name:  cmdName,
			value: levenshteinDistance(name, cmdName),
		})
	}
	if len(matches) == 0 {
		return "", false
	}
	// Find the smallest distance. If two values are the same, fall back to
	// sorting on the name, which gives predictable results.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].value != matches[j].value {
			return matches[i].value < matches[j].value
		}
		return matches[i].name < matches[j].name
	})
	// If the distance is bigger than the matched name itself, the match is
	// not relevant.
	if matches[0].value > len(matches[0].name) {
		return "", false
	}
	return matches[0].name, true
}

func levenshteinDistance(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			d := prev[j] + 1
			if cur[j-1]+1 < d {
				d = cur[j-1] + 1
			}
			if prev[j-1]+cost < d {
				d = prev[j-1] + cost
			}
			cur[j] = d
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
