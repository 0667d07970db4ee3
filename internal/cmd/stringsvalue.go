// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package cmd

import (
	"strings"

	"github.com/juju/gnuflag"
)

// StringsValue implements gnuflag.Value for a comma separated list of
// strings.
type StringsValue []string

var _ gnuflag.Value = (*StringsValue)(nil)

// NewStringsValue is used to create the type passed into FlagSet.Var.
func NewStringsValue(defaultValue []string, target *[]string) *StringsValue {
	value := (*StringsValue)(target)
	*value = defaultValue
	return value
}

// Set implements gnuflag.Value.
func (v *StringsValue) Set(s string) error {
	*v = strings.Split(s, ",")
	return nil
}

// String implements gnuflag.Value.
func (v *StringsValue) String() string {
	return strings.Join(*v, ",")
}

// AppendStringsValue implements gnuflag.Value for a value that can be
// given multiple times, accumulating each occurrence.
type AppendStringsValue []string

var _ gnuflag.Value = (*AppendStringsValue)(nil)

// NewAppendStringsValue is used to create the type passed into
// FlagSet.Var.
func NewAppendStringsValue(target *[]string) *AppendStringsValue {
	return (*AppendStringsValue)(target)
}

// Set implements gnuflag.Value.
func (v *AppendStringsValue) Set(s string) error {
	*v = append(*v, s)
	return nil
}

// String implements gnuflag.Value.
func (v *AppendStringsValue) String() string {
	return strings.Join(*v, ",")
}
