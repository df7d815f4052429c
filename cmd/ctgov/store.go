// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ctgov/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Search, show and export studies kept in the local store",
	Long: `Store works on the SQLite database that "studies --store" writes to.
Nothing here calls the API.`,
}

// --- search subcommand ---

var storeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over stored titles and conditions",
	RunE:  runStoreSearch,
}

func runStoreSearch(cmd *cobra.Command, args []string) error {
	s, err := store.Open(storeConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), searchOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(os.Stdout, results)
	}
	return formatSearchOutput(results)
}

func formatSearchOutput(results []store.Result) error {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-11s  %-22s  %-10s  %-40s  %s\n",
		"NCT ID", "Status", "Updated", "Title", "Conditions")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range results {
		fmt.Fprintf(os.Stdout, "%-11s  %-22s  %-10s  %-40s  %s\n",
			r.NCTID, truncate(r.OverallStatus, 22), r.LastUpdate,
			truncate(r.BriefTitle, 40), truncate(strings.Join(r.Conditions, "; "), 30))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- show subcommand ---

var storeShowCmd = &cobra.Command{
	Use:   "show <NCTID>",
	Short: "Print a stored study document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(storeConfig())
		if err != nil {
			return err
		}
		defer s.Close()

		rec, err := s.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, rec.Data)
	},
}

// --- runs subcommand ---

var storeRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded fetches",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Open(storeConfig())
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.Runs(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, runs)
		}
		for _, r := range runs {
			state := "running"
			if r.FinishedAt != nil {
				state = "done"
			}
			if r.Error != "" {
				state = "failed: " + r.Error
			}
			fmt.Printf("%s  %s  %4d pages  %6d studies  %s\n  %s\n",
				r.ID, r.StartedAt.Format("2006-01-02 15:04"), r.Pages, r.Studies, state, r.Params.Encode())
		}
		return nil
	},
}

// --- export subcommand ---

var storeExportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Export stored studies to YAML or JSON",
	Long: `Export writes the stored studies (or a filtered subset) to a file. YAML
exports hold summaries only; JSON exports include the full documents.`,
	RunE: runStoreExport,
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	s, err := store.Open(storeConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	opts := searchOptsFromFlags(cmd, args)

	var n int
	switch format {
	case "yaml", "":
		if out == "" {
			out = "export.yaml"
		}
		n, err = s.ExportYAML(cmd.Context(), out, opts)
	case "json":
		if out == "" {
			out = "export.json"
		}
		n, err = s.ExportJSON(cmd.Context(), out, opts)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d studies to %s\n", n, out)
	return nil
}

// --- shared helpers ---

func searchOptsFromFlags(cmd *cobra.Command, args []string) store.SearchOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	status, _ := cmd.Flags().GetString("status")
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")

	return store.SearchOptions{
		Query:      queryText,
		Status:     status,
		RunID:      runID,
		MaxResults: limit,
	}
}

func init() {
	for _, c := range []*cobra.Command{storeSearchCmd, storeExportCmd} {
		c.Flags().String("query", "", "full-text search query")
		c.Flags().String("status", "", "filter by overall status")
		c.Flags().String("run", "", "filter by run ID")
	}
	storeSearchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	storeSearchCmd.Flags().Bool("json", false, "output results as JSON")
	storeRunsCmd.Flags().Bool("json", false, "output runs as JSON")

	storeExportCmd.Flags().String("format", "yaml", "export format: yaml or json")
	storeExportCmd.Flags().String("out", "", "output file (default export.yaml or export.json)")
	storeExportCmd.Flags().Int("limit", 0, "maximum studies to export (0 = all)")

	storeCmd.AddCommand(storeSearchCmd)
	storeCmd.AddCommand(storeShowCmd)
	storeCmd.AddCommand(storeRunsCmd)
	storeCmd.AddCommand(storeExportCmd)

	rootCmd.AddCommand(storeCmd)
}
