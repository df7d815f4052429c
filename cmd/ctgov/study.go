// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ctgov/internal/query"
)

var studyCmd = &cobra.Command{
	Use:   "study <NCTID>",
	Short: "Fetch one study by NCT ID",
	Long: `Study fetches a single study document from /studies/{nctId} and prints it
as JSON. --field limits the document to the given paths, which are checked
against the schema first.`,
	Args: cobra.ExactArgs(1),
	RunE: runStudy,
}

func runStudy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	b := query.NewBuilder(cli.registry)
	if fields, _ := cmd.Flags().GetStringSlice("field"); len(fields) > 0 {
		if err := b.AddFieldProjection(ctx, fields...); err != nil {
			return err
		}
	}
	if markup, _ := cmd.Flags().GetString("markup"); markup != "" {
		if err := b.SetMarkupFormat(markup); err != nil {
			return err
		}
	}

	rec, err := cli.client.GetStudy(ctx, args[0], b.Build())
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, rec.Data)
}

func init() {
	studyCmd.Flags().StringSlice("field", nil, "field paths to return (repeatable, comma-separated)")
	studyCmd.Flags().String("markup", "", "markup format: markdown or legacy")

	rootCmd.AddCommand(studyCmd)
}
