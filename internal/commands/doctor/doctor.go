// Package doctor inspects a studytrack installation: the config file, the
// session snapshot left by the last run, and the collector.
package doctor

import (
	"context"
	"fmt"
)

// Status grades a single finding. Higher values are worse.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Finding is one observation made by a check.
type Finding struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`

	// Fixable findings are repaired by `studytrack doctor --fix`.
	Fixable bool `json:"fixable,omitempty"`
}

// Result groups the findings of one check.
type Result struct {
	Name     string    `json:"name"`
	Findings []Finding `json:"findings"`
}

func (r *Result) add(status Status, label, detail string) {
	r.Findings = append(r.Findings, Finding{Label: label, Status: status, Detail: detail})
}

// Status is the worst status among the findings.
func (r Result) Status() Status {
	worst := StatusPass
	for _, f := range r.Findings {
		worst = max(worst, f.Status)
	}
	return worst
}

// Check is a single diagnostic.
type Check interface {
	Name() string
	Run(ctx context.Context) Result
}

// Totals counts findings across a report.
type Totals struct {
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
	Fixable int `json:"fixable"`
}

// Report is the outcome of a doctor run.
type Report struct {
	Healthy bool     `json:"healthy"`
	Totals  Totals   `json:"summary"`
	Checks  []Result `json:"checks"`
}

// Run executes checks in order. Once ctx is done the remaining checks are
// reported as failed without running.
func Run(ctx context.Context, checks ...Check) Report {
	var rep Report
	for _, check := range checks {
		var result Result
		if err := ctx.Err(); err != nil {
			result = Result{Name: check.Name()}
			result.add(StatusFail, "Skipped", fmt.Sprintf("not run: %v", err))
		} else {
			result = check.Run(ctx)
		}
		rep.Checks = append(rep.Checks, result)
		rep.Totals.count(result.Findings)
	}
	rep.Healthy = rep.Totals.Failed == 0
	return rep
}

func (t *Totals) count(findings []Finding) {
	for _, f := range findings {
		switch f.Status {
		case StatusPass:
			t.Passed++
		case StatusWarn:
			t.Warned++
		case StatusFail:
			t.Failed++
		}
		if f.Fixable && f.Status != StatusPass {
			t.Fixable++
		}
	}
}
