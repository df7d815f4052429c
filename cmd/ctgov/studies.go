// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pdiddy/ctgov/internal/fetch"
	"github.com/pdiddy/ctgov/internal/query"
	"github.com/pdiddy/ctgov/internal/store"
	"github.com/pdiddy/ctgov/pkg/types"
)

var studiesCmd = &cobra.Command{
	Use:   "studies",
	Short: "Search studies and page through the results",
	Long: `Studies builds a /studies request from flags or a saved intent file,
validates every field path, enum value and search area against the API
schema, then follows page tokens until the results run out, --max-pages is
reached or --limit studies have been collected.

Pages can be written to the local store with --store. When a fetch is
interrupted, the token printed on stderr resumes it with --page-token.

Several --intent files run as independent concurrent fetches; their pages
go to the store and only a summary is printed.`,
	Example: `  ctgov studies --cond asthma --status RECRUITING,NOT_YET_RECRUITING --limit 20
  ctgov studies --area term=aspirin --field NCTId,BriefTitle --json
  ctgov studies --cond asthma --status COMPLETED --count-total --save asthma.yaml
  ctgov studies --intent asthma.yaml --store`,
	RunE: runStudies,
}

func runStudies(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	intentPaths, _ := cmd.Flags().GetStringArray("intent")
	if len(intentPaths) > 1 {
		return runStudiesMany(ctx, cmd, intentPaths)
	}

	var base query.Intent
	if len(intentPaths) == 1 {
		f, err := query.ReadIntentFile(intentPaths[0])
		if err != nil {
			return err
		}
		base = f.Intent
	}
	in, err := intentFromFlags(cmd, base)
	if err != nil {
		return err
	}
	if on, _ := cmd.Flags().GetBool("store"); on {
		in = withStoreKey(in)
	}

	params, err := query.Compile(ctx, cli.registry, in)
	if err != nil {
		return err
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		fmt.Println(params.Encode())
		return nil
	}

	pageToken, _ := cmd.Flags().GetString("page-token")
	maxPages, _ := cmd.Flags().GetInt("max-pages")
	limit, _ := cmd.Flags().GetInt("limit")
	pager := cli.fetcher.Fetch(params, fetch.Options{PageToken: pageToken, MaxPages: maxPages})

	sink, runID, err := openSink(ctx, cmd, params)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	var (
		records []types.StudyRecord
		total   *int
		fetched int
		stored  int
	)
	var fetchErr error
	for b, err := range pager.All(ctx) {
		if err != nil {
			fetchErr = err
			break
		}
		fetched += len(b.Studies)
		if b.TotalCount != nil {
			total = b.TotalCount
		}
		if sink != nil {
			n, err := sink.Save(ctx, runID, b.Studies)
			stored += n
			if err != nil {
				fetchErr = err
				break
			}
		}
		records = append(records, b.Studies...)
		if limit > 0 && len(records) >= limit {
			records = records[:limit]
			break
		}
	}

	if sink != nil {
		if err := sink.FinishRun(context.WithoutCancel(ctx), runID, pager.Pages(), stored, fetchErr); err != nil {
			cli.log.Warn().Err(err).Str("run", runID).Msg("could not record run outcome")
		}
		fmt.Fprintf(os.Stderr, "Stored %d of %d studies in run %s\n", stored, fetched, runID)
	}
	if fetchErr != nil && pager.Token() != "" {
		fmt.Fprintf(os.Stderr, "Resume with --page-token %s\n", pager.Token())
	}

	if savePath, _ := cmd.Flags().GetString("save"); savePath != "" && fetchErr == nil {
		summary := query.IntentSummary{Pages: pager.Pages(), Studies: fetched, TotalCount: total, Timestamp: time.Now()}
		if err := query.WriteIntentFile(savePath, in, params, summary); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved intent to %s\n", savePath)
	}

	if err := printStudies(cmd, records, total); err != nil {
		return err
	}
	return fetchErr
}

func runStudiesMany(ctx context.Context, cmd *cobra.Command, paths []string) error {
	sink, err := store.Open(storeConfig())
	if err != nil {
		return err
	}
	defer sink.Close()

	maxPages, _ := cmd.Flags().GetInt("max-pages")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	reqs := make([]fetch.Request, len(paths))
	runs := make([]string, len(paths))
	counts := make([]int, len(paths))
	pages := make([]int, len(paths))
	for i, path := range paths {
		f, err := query.ReadIntentFile(path)
		if err != nil {
			return err
		}
		params, err := query.Compile(ctx, cli.registry, f.Intent)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if runs[i], err = sink.BeginRun(ctx, params); err != nil {
			return err
		}
		reqs[i] = fetch.Request{Params: params, Options: fetch.Options{MaxPages: maxPages}}
	}

	err = cli.fetcher.FetchMany(ctx, reqs, concurrency, func(i int, b fetch.Batch) error {
		n, err := sink.Save(ctx, runs[i], b.Studies)
		counts[i] += n
		pages[i] = b.Page
		return err
	})

	for i, path := range paths {
		if ferr := sink.FinishRun(context.WithoutCancel(ctx), runs[i], pages[i], counts[i], err); ferr != nil {
			cli.log.Warn().Err(ferr).Str("run", runs[i]).Msg("could not record run outcome")
		}
		fmt.Fprintf(os.Stdout, "%-30s  run %s  %d pages  %d studies\n", truncate(path, 30), runs[i], pages[i], counts[i])
	}
	return err
}

// nctIDPath is the field the store keys records by.
const nctIDPath = "protocolSection.identificationModule.nctId"

// withStoreKey adds the NCT ID to a field projection so stored records can
// be keyed. An empty projection already returns every field.
func withStoreKey(in query.Intent) query.Intent {
	if len(in.Fields) == 0 {
		return in
	}
	in.Fields = append(slices.Clone(in.Fields), nctIDPath)
	return in
}

// openSink opens the store and begins a run when --store is set.
func openSink(ctx context.Context, cmd *cobra.Command, params types.Params) (*store.Store, string, error) {
	if on, _ := cmd.Flags().GetBool("store"); !on {
		return nil, "", nil
	}
	s, err := store.Open(storeConfig())
	if err != nil {
		return nil, "", err
	}
	runID, err := s.BeginRun(ctx, params)
	if err != nil {
		s.Close()
		return nil, "", err
	}
	return s, runID, nil
}

// intentFromFlags adds the command-line selections to base.
func intentFromFlags(cmd *cobra.Command, base query.Intent) (query.Intent, error) {
	in := base
	fl := cmd.Flags()

	fields, _ := fl.GetStringSlice("field")
	in.Fields = append(in.Fields, fields...)

	for _, shortcut := range []string{"cond", "term", "intr", "locn", "spons"} {
		if v, _ := fl.GetString(shortcut); v != "" {
			in.Areas = append(in.Areas, query.AreaFilter{Param: shortcut, Value: v})
		}
	}
	areas, _ := fl.GetStringArray("area")
	for _, a := range areas {
		k, v, err := splitPair("area", a)
		if err != nil {
			return in, err
		}
		in.Areas = append(in.Areas, query.AreaFilter{Param: k, Value: v})
	}

	if v, _ := fl.GetString("status"); v != "" {
		in.Enums = append(in.Enums, query.EnumFilter{Field: "OverallStatus", Values: splitList(v)})
	}
	enums, _ := fl.GetStringArray("enum")
	for _, e := range enums {
		k, v, err := splitPair("enum", e)
		if err != nil {
			return in, err
		}
		in.Enums = append(in.Enums, query.EnumFilter{Field: k, Values: splitList(v)})
	}

	filters, _ := fl.GetStringArray("filter")
	for _, f := range filters {
		k, v, err := splitPair("filter", f)
		if err != nil {
			return in, err
		}
		in.Filters = append(in.Filters, query.Filter{Name: k, Value: v})
	}

	if fl.Changed("sort") {
		in.Sort, _ = fl.GetStringSlice("sort")
	}
	if fl.Changed("page-size") {
		in.PageSize, _ = fl.GetInt("page-size")
	}
	if fl.Changed("markup") {
		in.MarkupFormat, _ = fl.GetString("markup")
	}
	if total, _ := fl.GetBool("count-total"); total {
		in.CountTotal = true
	}
	return in, nil
}

func printStudies(cmd *cobra.Command, records []types.StudyRecord, total *int) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		docs := make([]map[string]any, len(records))
		for i, r := range records {
			docs[i] = r.Data
		}
		return printJSON(os.Stdout, docs)
	}

	printStudyTable(os.Stdout, records)
	if total != nil {
		fmt.Fprintf(os.Stdout, "\n%d of %d studies\n", len(records), *total)
	} else {
		fmt.Fprintf(os.Stdout, "\n%d studies\n", len(records))
	}
	return nil
}

func init() {
	addStudiesFlags(studiesCmd.Flags())
	rootCmd.AddCommand(studiesCmd)
}

func addStudiesFlags(fl *pflag.FlagSet) {
	fl.StringSlice("field", nil, "field paths to return (repeatable, comma-separated)")
	fl.String("cond", "", "condition or disease search (query.cond)")
	fl.String("term", "", "free-text search (query.term)")
	fl.String("intr", "", "intervention search (query.intr)")
	fl.String("locn", "", "location search (query.locn)")
	fl.String("spons", "", "sponsor search (query.spons)")
	fl.StringArray("area", nil, "search area expression param=value (repeatable)")
	fl.String("status", "", "overall status values (comma-separated)")
	fl.StringArray("enum", nil, "enum filter field=v1,v2; the API filters on OverallStatus only, use --filter advanced for others (repeatable)")
	fl.StringArray("filter", nil, "filter name=value: ids, advanced, geo, synonyms (repeatable)")
	fl.StringSlice("sort", nil, "sort expressions, e.g. LastUpdatePostDate:desc")
	fl.Int("page-size", 0, "studies per page (default from config)")
	fl.String("markup", "", "markup format: markdown or legacy")
	fl.Bool("count-total", false, "ask the API for the total match count")
	fl.String("page-token", "", "resume from a previously printed page token")
	fl.Int("max-pages", 0, "stop after this many pages (0 = all)")
	fl.Int("limit", 0, "stop after this many studies (0 = all)")
	fl.Bool("json", false, "print study documents as JSON")
	fl.Bool("dry-run", false, "print the encoded query and exit")
	fl.StringArray("intent", nil, "load a saved intent file (repeat to run several concurrently)")
	fl.String("save", "", "write the intent and run summary to this file")
	fl.Bool("store", false, "write fetched studies to the local store")
	fl.Int("concurrency", 4, "parallel fetches when several intents are given")
}
