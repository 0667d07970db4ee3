// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/mattn/go-isatty"
)

// RcPassthroughError indicates that a Run function should return a particular
// return code to the shell rather than the generic 1.
type RcPassthroughError struct {
	Code int
}

// Error implements error.
func (e *RcPassthroughError) Error() string {
	return fmt.Sprintf("subprocess encountered error code %v", e.Code)
}

// IsRcPassthroughError reports whether the error is an RcPassthroughError.
func IsRcPassthroughError(err error) bool {
	_, ok := err.(*RcPassthroughError)
	return ok
}

// NewRcPassthroughError creates an error that will have the code used at the
// return code from the cmd.Main function rather than the default of 1 if
// there is an error.
func NewRcPassthroughError(code int) error {
	return &RcPassthroughError{code}
}

// ErrSilent can be returned from Run to signal that Main should exit with
// code 1 without producing error output.
var ErrSilent = errors.New("cmd: error out silently")

// IsErrSilent reports whether the error should be logged from cmd.Main.
func IsErrSilent(err error) bool {
	if err == ErrSilent {
		return true
	}
	if _, ok := err.(*RcPassthroughError); ok {
		return true
	}
	return false
}

// Command is implemented by types that interpret command-line arguments.
type Command interface {
	// IsSuperCommand returns true if the command is a super command.
	IsSuperCommand() bool

	// Info returns information about the Command.
	Info() *Info

	// SetFlags adds command specific flags to the flag set.
	SetFlags(f *gnuflag.FlagSet)

	// Init initializes the Command before running.
	Init(args []string) error

	// Run will execute the Command as directed by the options and positional
	// arguments passed to Init.
	Run(ctx *Context) error

	// AllowInterspersedFlags returns whether the command allows flag
	// arguments to be interspersed with non-flag arguments.
	AllowInterspersedFlags() bool
}

// CommandBase provides the default implementation for SetFlags, Init, and Help.
type CommandBase struct{}

// IsSuperCommand implements Command.IsSuperCommand
func (c *CommandBase) IsSuperCommand() bool {
	return false
}

// SetFlags does nothing in the simplest case.
func (c *CommandBase) SetFlags(f *gnuflag.FlagSet) {}

// Init in the simplest case makes sure there are no args.
func (c *CommandBase) Init(args []string) error {
	return CheckEmpty(args)
}

// AllowInterspersedFlags returns true by default. Some subcommands
// may want to override this.
func (c *CommandBase) AllowInterspersedFlags() bool {
	return true
}

// Info holds some of the usage documentation of a Command.
type Info struct {
	// Name is the Command's name.
	Name string

	// Args describes the command's expected positional arguments.
	Args string

	// Purpose is a short explanation of the Command's purpose.
	Purpose string

	// Doc is the long documentation for the Command.
	Doc string

	// Examples is a collection of running examples.
	Examples string

	// SeeAlso is a collection of related commands.
	SeeAlso []string

	// Subcommands stores the name and description of each subcommand.
	Subcommands map[string]string

	// Aliases are other names for the Command.
	Aliases []string

	// FlagKnownAs allows different projects to customise what their flags are
	// known as, e.g. 'flag', 'option'.
	FlagKnownAs string
}

// Help renders i's content, along with details about any flags defined in f,
// to a formatted usage document.
func (i *Info) Help(f *gnuflag.FlagSet) []byte {
	return i.HelpWithSuperFlags(nil, f)
}

// HelpWithSuperFlags renders i's content, along with details about any flags
// defined both in the command and its super command flag sets.
func (i *Info) HelpWithSuperFlags(superF *gnuflag.FlagSet, f *gnuflag.FlagSet) []byte {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "Usage: %s", i.Name)
	hasOptions := false
	f.VisitAll(func(f *gnuflag.Flag) { hasOptions = true })
	if hasOptions {
		fmt.Fprintf(buf, " [%vs]", i.FlagKnownAs)
	}
	if i.Args != "" {
		fmt.Fprintf(buf, " %s", i.Args)
	}
	fmt.Fprintf(buf, "\n")
	if i.Purpose != "" {
		fmt.Fprintf(buf, "\nSummary:\n%s\n", strings.TrimSpace(i.Purpose))
	}
	if hasOptions {
		fmt.Fprintf(buf, "\n%vs:\n", strings.Title(i.FlagKnownAs))
		f.SetOutput(buf)
		f.PrintDefaults()
	}
	if superF != nil {
		hasSuperOptions := false
		superF.VisitAll(func(f *gnuflag.Flag) { hasSuperOptions = true })
		if hasSuperOptions {
			fmt.Fprintf(buf, "\nGlobal %vs:\n", strings.Title(i.FlagKnownAs))
			superF.SetOutput(buf)
			superF.PrintDefaults()
		}
	}
	f.SetOutput(io.Discard)
	if i.Doc != "" {
		fmt.Fprintf(buf, "\nDetails:\n%s\n", strings.TrimSpace(i.Doc))
	}
	if len(i.Aliases) > 0 {
		fmt.Fprintf(buf, "\nAliases: %s\n", strings.Join(i.Aliases, ", "))
	}
	if i.Examples != "" {
		fmt.Fprintf(buf, "\nExamples:\n%s", i.Examples)
	}
	if len(i.Subcommands) > 0 {
		fmt.Fprintf(buf, "\n%s", i.describeCommands())
	}
	if len(i.SeeAlso) > 0 {
		fmt.Fprintf(buf, "\nSee also:\n")
		for _, name := range i.SeeAlso {
			fmt.Fprintf(buf, " - %s\n", name)
		}
	}
	return buf.Bytes()
}

func (i *Info) describeCommands() string {
	cmdNames := make([]string, 0, len(i.Subcommands))
	longest := 0
	for name := range i.Subcommands {
		if len(name) > longest {
			longest = len(name)
		}
		cmdNames = append(cmdNames, name)
	}
	sort.Strings(cmdNames)

	descr := "Subcommands:\n"
	for _, name := range cmdNames {
		purpose := i.Subcommands[name]
		descr += fmt.Sprintf("    %-*s  %s\n", longest, name, purpose)
	}
	return descr
}

// FlagAlias returns the name used to refer to flags in command help output,
// or defaultName if the command does not customise it.
func FlagAlias(c Command, defaultName string) string {
	info := c.Info()
	if info != nil && info.FlagKnownAs != "" {
		return info.FlagKnownAs
	}
	return defaultName
}

// Context represents the run context of a Command. Command implementations
// should interpret file names relative to Dir (see AbsPath below), and print
// output and errors to Stdout and Stderr respectively.
type Context struct {
	context.Context

	Dir    string
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	quiet   bool
	verbose bool
}

// NewContext returns a Context suitable for direct use with a Command,
// wrapping the given context.Context.
func NewContext(ctx context.Context, dir string, stdin io.Reader, stdout, stderr io.Writer) *Context {
	return &Context{
		Context: ctx,
		Dir:     dir,
		Stdin:   stdin,
		Stdout:  stdout,
		Stderr:  stderr,
	}
}

// DefaultContext returns a Context suitable for use in non-hosted situations.
func DefaultContext(ctx context.Context) (*Context, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, errors.Trace(err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewContext(ctx, abs, os.Stdin, os.Stdout, os.Stderr), nil
}

// Deadline implements context.Context.
func (ctx *Context) Deadline() (time.Time, bool) {
	return ctx.Context.Deadline()
}

// Done implements context.Context.
func (ctx *Context) Done() <-chan struct{} {
	return ctx.Context.Done()
}

// Err implements context.Context.
func (ctx *Context) Err() error {
	return ctx.Context.Err()
}

// Value implements context.Context.
func (ctx *Context) Value(key any) any {
	return ctx.Context.Value(key)
}

// With returns a Context with the given context.Context.
func (ctx *Context) With(stdCtx context.Context) *Context {
	newCtx := *ctx
	newCtx.Context = stdCtx
	return &newCtx
}

// AbsPath returns an absolute representation of path, with relative paths
// interpreted as relative to ctx.Dir and with "~/" replaced with users
// home dir.
func (ctx *Context) AbsPath(path string) string {
	if h := os.Getenv("HOME"); h != "" && strings.HasPrefix(path, "~/") {
		return filepath.Join(h, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ctx.Dir, path)
}

// Getenv looks up an environment variable in the context.
func (ctx *Context) Getenv(key string) string {
	value, _ := ctx.Env[key]
	return value
}

// IsQuiet reports whether the command is in "quiet" mode.
func (ctx *Context) IsQuiet() bool {
	return ctx.quiet
}

// IsVerbose reports whether the command is in "verbose" mode.
func (ctx *Context) IsVerbose() bool {
	return ctx.verbose
}

// IsTerminal reports whether the context's stdout is attached to a terminal.
func (ctx *Context) IsTerminal() bool {
	f, ok := ctx.Stdout.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

// Infof writes the formatted message to the context's stderr, unless the
// command is in quiet mode. User facing progress should use Infof, leaving
// Stdout for a command's actual product.
func (ctx *Context) Infof(format string, params ...interface{}) {
	if ctx.quiet {
		return
	}
	fmt.Fprintf(ctx.Stderr, format+"\n", params...)
}

// Verbosef writes the formatted message to the context's stderr when the
// command is in verbose mode.
func (ctx *Context) Verbosef(format string, params ...interface{}) {
	if !ctx.verbose {
		return
	}
	fmt.Fprintf(ctx.Stderr, format+"\n", params...)
}

// Warningf writes the formatted message to the context's stderr, prefixed
// with WARNING.
func (ctx *Context) Warningf(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "WARNING "+format+"\n", params...)
}

// Errorf writes the formatted message to the context's stderr, prefixed
// with ERROR.
func (ctx *Context) Errorf(format string, params ...interface{}) {
	fmt.Fprintf(ctx.Stderr, "ERROR "+format+"\n", params...)
}

// WriteError writes the error message to w with an ERROR prefix.
func WriteError(w io.Writer, err error) {
	fmt.Fprintf(w, "ERROR %s\n", err.Error())
}

// CheckEmpty is a utility function that returns an error if args is not empty.
func CheckEmpty(args []string) error {
	if len(args) != 0 {
		return errors.Errorf("unrecognized args: %q", args)
	}
	return nil
}

// ZeroOrOneArgs checks to see that there are zero or one args, and returns
// the value of the arg if provided, or the empty string if not.
func ZeroOrOneArgs(args []string) (string, error) {
	var result string
	if len(args) > 0 {
		result, args = args[0], args[1:]
	}
	if err := CheckEmpty(args); err != nil {
		return "", errors.Trace(err)
	}
	return result, nil
}

// Main runs the given Command in the supplied Context with the given
// arguments, which should not include the command name. It returns a code
// suitable for passing to os.Exit.
func Main(c Command, ctx *Context, args []string) int {
	f := gnuflag.NewFlagSetWithFlagKnownAs(c.Info().Name, gnuflag.ContinueOnError, FlagAlias(c, "flag"))
	f.SetOutput(io.Discard)
	c.SetFlags(f)
	if err := f.Parse(c.AllowInterspersedFlags(), args); err != nil {
		if err != gnuflag.ErrHelp {
			fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		}
		printHelp(c, f, ctx)
		return 2
	}
	// Since SuperCommands can also return gnuflag.ErrHelp errors,
	// we need to handle both those types of errors as well as "real"
	// errors.
	if err := c.Init(f.Args()); err != nil {
		if err == gnuflag.ErrHelp {
			printHelp(c, f, ctx)
			return 0
		}
		fmt.Fprintf(ctx.Stderr, "ERROR %v\n", err)
		return 2
	}
	if err := c.Run(ctx); err != nil {
		if IsRcPassthroughError(err) {
			return err.(*RcPassthroughError).Code
		}
		if err != ErrSilent {
			WriteError(ctx.Stderr, err)
		}
		return 1
	}
	return 0
}

func printHelp(c Command, f *gnuflag.FlagSet, ctx *Context) {
	ctx.Stdout.Write(c.Info().Help(f))
}
