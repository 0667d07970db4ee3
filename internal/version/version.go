// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package version holds the tool version reported by the version command
// and stamped into user agent strings.
package version

// Current is the version of the built tool. Overridden at link time for
// release builds.
var Current = "1.0.0"
