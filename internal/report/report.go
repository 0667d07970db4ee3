// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package report accumulates per-resource validation outcomes and renders
// them for the terminal or for export. A failing check never aborts the
// run that produced it; it is counted and carried in the summary.
package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/juju/errors"
)

// Status classifies the outcome of one check on one resource.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is the outcome of one check on one resource.
type Result struct {
	Resource string `json:"resource" yaml:"resource"`
	Check    string `json:"check" yaml:"check"`
	Status   Status `json:"status" yaml:"status"`
	Detail   string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Summary aggregates results with pass/warn/fail counters.
type Summary struct {
	Generated time.Time `json:"generated" yaml:"generated"`
	Results   []Result  `json:"results" yaml:"results"`
	Passed    int       `json:"passed" yaml:"passed"`
	Warned    int       `json:"warned" yaml:"warned"`
	Failed    int       `json:"failed" yaml:"failed"`
}

// NewSummary returns an empty summary stamped with the given time.
func NewSummary(now time.Time) *Summary {
	return &Summary{Generated: now}
}

// Add records a result and bumps the matching counter.
func (s *Summary) Add(result Result) {
	s.Results = append(s.Results, result)
	switch result.Status {
	case StatusPass:
		s.Passed++
	case StatusWarn:
		s.Warned++
	case StatusFail:
		s.Failed++
	}
}

// Pass records a passing check.
func (s *Summary) Pass(resource, check, detail string) {
	s.Add(Result{Resource: resource, Check: check, Status: StatusPass, Detail: detail})
}

// Warn records a warning.
func (s *Summary) Warn(resource, check, detail string) {
	s.Add(Result{Resource: resource, Check: check, Status: StatusWarn, Detail: detail})
}

// Fail records a failing check.
func (s *Summary) Fail(resource, check, detail string) {
	s.Add(Result{Resource: resource, Check: check, Status: StatusFail, Detail: detail})
}

// Ok reports whether no check failed. Warnings do not fail a run.
func (s *Summary) Ok() bool {
	return s.Failed == 0
}

// WriteCSV renders the summary's results as CSV rows with a header,
// matching the export shape the lab reports used.
func (s *Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"resource", "check", "status", "detail"}); err != nil {
		return errors.Trace(err)
	}
	for _, r := range s.Results {
		if err := cw.Write([]string{r.Resource, r.Check, string(r.Status), r.Detail}); err != nil {
			return errors.Trace(err)
		}
	}
	cw.Flush()
	return errors.Trace(cw.Error())
}
