// Package diff implements the diff-aggregation engine: it takes an
// arbitrary set of session entries, groups them by owning repository,
// diffs each repository against its baseline and merges the results
// into one report.
package diff

import (
	"fmt"
	"strings"
)

// Classification is the outcome recorded for one input entry. Every
// input entry receives exactly one classification.
type Classification string

const (
	ClassDiffed              Classification = "diffed"
	ClassSkippedUntracked    Classification = "skipped_untracked"
	ClassSkippedNonTrackable Classification = "skipped_non_trackable"
	ClassErrored             Classification = "errored"
)

// ItemResult is the classification of one input entry.
type ItemResult struct {
	Location string         `json:"location"`
	Class    Classification `json:"class"`
	Message  string         `json:"message,omitempty"` // set for errored entries
}

// PathError records a failed diff request for one path or change. It
// never aborts sibling work.
type PathError struct {
	Repository string `json:"repository"`
	Path       string `json:"path"`
	Message    string `json:"message"`
}

// Report is the merged outcome of one aggregation run.
type Report struct {
	// MergedText is the concatenation of per-repository diff sections
	// in group-discovery order, trailing whitespace trimmed.
	MergedText string `json:"merged_text"`

	// Items holds exactly one classification per input entry, in
	// input order.
	Items []ItemResult `json:"items"`

	// DiffedPaths lists the concrete changed relative paths that
	// contributed non-empty diff text, in merge order.
	DiffedPaths []string `json:"diffed_paths,omitempty"`

	// Errors holds path-level failures, in merge order.
	Errors []PathError `json:"errors,omitempty"`
}

// Counts returns the classification totals. Their sum always equals
// the input entry count.
func (r *Report) Counts() (diffed, untracked, nonTrackable, errored int) {
	for _, it := range r.Items {
		switch it.Class {
		case ClassDiffed:
			diffed++
		case ClassSkippedUntracked:
			untracked++
		case ClassSkippedNonTrackable:
			nonTrackable++
		case ClassErrored:
			errored++
		}
	}
	return
}

// Summary returns the one-line completion message for the run. An
// empty merged text with no errors reads "No changes"; a run where
// every input was skipped reads "Nothing trackable was found".
func (r *Report) Summary() string {
	diffed, untracked, nonTrackable, errored := r.Counts()

	var parts []string
	switch {
	case r.MergedText == "" && errored == 0 && diffed == 0 && (untracked > 0 || nonTrackable > 0):
		parts = append(parts, "Nothing trackable was found")
	case r.MergedText == "" && errored == 0:
		parts = append(parts, "No changes")
	default:
		parts = append(parts, fmt.Sprintf("Diffed %d %s", len(r.DiffedPaths), plural(len(r.DiffedPaths), "path", "paths")))
	}

	if untracked > 0 {
		parts = append(parts, fmt.Sprintf("Skipped %d %s (untracked)", untracked, plural(untracked, "item", "items")))
	}
	if nonTrackable > 0 {
		parts = append(parts, fmt.Sprintf("Skipped %d %s (not trackable)", nonTrackable, plural(nonTrackable, "item", "items")))
	}
	if errored > 0 || len(r.Errors) > 0 {
		n := errored
		if len(r.Errors) > n {
			n = len(r.Errors)
		}
		parts = append(parts, fmt.Sprintf("%d %s failed", n, plural(n, "request", "requests")))
	}

	return strings.Join(parts, ". ")
}

// ErrorSection renders the appended error block shown after a partial
// failure, or an empty string when nothing failed.
func (r *Report) ErrorSection() string {
	if len(r.Errors) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("--- Errors ---\n")
	for _, e := range r.Errors {
		if e.Path != "" {
			fmt.Fprintf(&sb, "%s: %s: %s\n", e.Repository, e.Path, e.Message)
		} else {
			fmt.Fprintf(&sb, "%s: %s\n", e.Repository, e.Message)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
