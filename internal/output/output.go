// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package output holds helpers for pretty printing to the terminal:
// tab writers for listings and ansi colored status contexts, matching
// the colored status lines the lab operators expect.
package output

import (
	"fmt"
	"io"

	"github.com/juju/ansiterm"
)

// DefaultWriter holds the default writer settings for tabular output.
const (
	minwidth = 0
	tabwidth = 1
	padding  = 2
	padchar  = ' '
	flags    = 0
)

// TabWriter returns a new tab writer with common layout definition.
func TabWriter(writer io.Writer) *ansiterm.TabWriter {
	return ansiterm.NewTabWriter(writer, minwidth, tabwidth, padding, padchar, flags)
}

// Wrapper provides some helper functions for writing values out tab
// separated.
type Wrapper struct {
	*ansiterm.TabWriter
}

// Print writes each value followed by a tab.
func (w *Wrapper) Print(values ...interface{}) {
	for _, v := range values {
		fmt.Fprintf(w, "%v\t", v)
	}
}

// Printf writes the formatted text followed by a tab.
func (w *Wrapper) Printf(format string, values ...interface{}) {
	fmt.Fprintf(w, format+"\t", values...)
}

// Println writes many tab separated values finished with a new line.
func (w *Wrapper) Println(values ...interface{}) {
	for i, v := range values {
		if i != len(values)-1 {
			fmt.Fprintf(w, "%v\t", v)
		} else {
			fmt.Fprintf(w, "%v", v)
		}
	}
	fmt.Fprintln(w)
}

// PrintColor writes the value out in the color context specified.
func (w *Wrapper) PrintColor(ctx *ansiterm.Context, value interface{}) {
	if ctx != nil {
		ctx.Fprintf(w.TabWriter, "%v\t", value)
	} else {
		fmt.Fprintf(w, "%v\t", value)
	}
}

// PrintStatus writes out the status value in the standard color for that
// status.
func (w *Wrapper) PrintStatus(status string) {
	w.PrintColor(statusColor(status), status)
}

// CurrentHighlight is the color used to show the current
// entity in tabular output.
var CurrentHighlight = ansiterm.Foreground(ansiterm.Green)

// ErrorHighlight is the color used to show error conditions.
var ErrorHighlight = ansiterm.Foreground(ansiterm.Red)

// WarningHighlight is the color used to show warning conditions.
var WarningHighlight = ansiterm.Foreground(ansiterm.Yellow)

// GoodHighlight is used to indicate good or success conditions.
var GoodHighlight = ansiterm.Foreground(ansiterm.Green)

// InfoHighlight is  the color used to indicate important details.
var InfoHighlight = ansiterm.Foreground(ansiterm.Cyan)

// EmphasisHighlight is used to show accompanying information, which
// might be deemed as important by the user.
var EmphasisHighlight = struct {
	White     *ansiterm.Context
	Gray      *ansiterm.Context
	BoldWhite *ansiterm.Context
}{
	White:     ansiterm.Foreground(ansiterm.White),
	Gray:      ansiterm.Foreground(ansiterm.Gray),
	BoldWhite: ansiterm.Foreground(ansiterm.White).SetStyle(ansiterm.Bold),
}

func statusColor(status string) *ansiterm.Context {
	switch status {
	case "pass", "ok", "enabled", "succeeded":
		return GoodHighlight
	case "warn", "partial", "pending":
		return WarningHighlight
	case "fail", "error", "disabled":
		return ErrorHighlight
	}
	return nil
}
