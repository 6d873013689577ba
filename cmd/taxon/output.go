package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/helixml/taxon/domain/pipeline"
)

// errPhaseFailed makes the process exit non-zero after the result was printed.
var errPhaseFailed = errors.New("phase failed")

// printResults writes one block per phase result and returns errPhaseFailed
// if any phase failed.
func printResults(w io.Writer, results ...pipeline.Result) error {
	failed := false
	for _, r := range results {
		writeSummary(w, r.Summary())
		if f, ok := r.(pipeline.Failure); ok {
			failed = true
			_, _ = fmt.Fprintf(w, "  error [%s]: %s\n", f.Kind(), f.Message())
		}
	}
	if failed {
		return errPhaseFailed
	}
	return nil
}

func writeSummary(w io.Writer, s pipeline.Summary) {
	parts := []string{
		fmt.Sprintf("processed=%d", s.Processed()),
		fmt.Sprintf("skipped=%d", s.Skipped()),
		fmt.Sprintf("failed=%d", s.Failed()),
	}
	counts := s.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", s.Operation().Short(), strings.Join(parts, " "))
	for _, f := range s.Failures() {
		_, _ = fmt.Fprintf(w, "  %s\n", f)
	}
}
