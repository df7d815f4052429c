// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/pdiddy/ctgov/pkg/types"
)

// outputAPI keeps json.Number values from the client intact and sorts keys
// so output diffs cleanly.
var outputAPI = sonic.Config{UseNumber: true, SortMapKeys: true, EscapeHTML: false}.Froze()

func printJSON(w io.Writer, v any) error {
	data, err := outputAPI.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:max(n-3, 0)]) + "..."
}

func printStudyTable(w io.Writer, records []types.StudyRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No studies found.")
		return
	}

	fmt.Fprintf(w, "%-11s  %-24s  %-7s  %s\n", "NCT ID", "Status", "Results", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range records {
		results := "no"
		if r.HasResults {
			results = "yes"
		}
		fmt.Fprintf(w, "%-11s  %-24s  %-7s  %s\n",
			r.NCTID, truncate(r.OverallStatus, 24), results, truncate(r.BriefTitle, 50))
	}
}

// splitPair parses a "key=value" flag argument.
func splitPair(flag, arg string) (string, string, error) {
	k, v, ok := strings.Cut(arg, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("--%s %q: expected key=value", flag, arg)
	}
	return k, strings.TrimSpace(v), nil
}

// splitList splits a comma-separated value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
