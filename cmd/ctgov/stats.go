// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ctgov/internal/ctgov"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Query dataset statistics",
}

var statsSizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Study document size statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := cli.client.SizeStats(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, st)
		}
		fmt.Printf("Studies:       %d\n", st.TotalStudies)
		fmt.Printf("Average size:  %d bytes\n", st.AverageSizeBytes)
		for _, s := range st.LargestStudies {
			fmt.Printf("  %-11s  %d bytes\n", s.ID, s.SizeBytes)
		}
		return nil
	},
}

var statsValuesCmd = &cobra.Command{
	Use:   "values",
	Short: "Most frequent values of fields",
	Long: `Values reports the most frequent values of the given fields, or of every
field of the given types. Field paths are checked against the schema.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fields, _ := cmd.Flags().GetStringSlice("field")
		fieldTypes, _ := cmd.Flags().GetStringSlice("type")
		for _, f := range fields {
			if _, err := cli.registry.Resolve(ctx, f); err != nil {
				return err
			}
		}

		stats, err := cli.client.FieldValuesStats(ctx, ctgov.FieldValuesQuery{Fields: fields, Types: fieldTypes})
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, stats)
		}
		for _, s := range stats {
			fmt.Printf("%s (%s): %d unique, %d missing\n", s.Field, s.Type, s.UniqueValuesCount, s.MissingStudiesCount)
			for _, v := range s.TopValues {
				fmt.Printf("  %-40s  %d\n", truncate(v.Value, 40), v.StudiesCount)
			}
		}
		return nil
	},
}

var statsSizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "List size statistics of list fields",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		fields, _ := cmd.Flags().GetStringSlice("field")
		for _, f := range fields {
			if _, err := cli.registry.Resolve(ctx, f); err != nil {
				return err
			}
		}

		stats, err := cli.client.FieldSizesStats(ctx, ctgov.FieldSizesQuery{Fields: fields})
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, stats)
		}
		for _, s := range stats {
			fmt.Printf("%s: sizes %d..%d, %d unique\n", s.Field, s.MinSize, s.MaxSize, s.UniqueSizesCount)
			for _, c := range s.TopSizes {
				fmt.Printf("  %6d  %d\n", c.Size, c.StudiesCount)
			}
		}
		return nil
	},
}

func init() {
	statsCmd.PersistentFlags().Bool("json", false, "output as JSON")
	statsValuesCmd.Flags().StringSlice("field", nil, "field paths (comma-separated)")
	statsValuesCmd.Flags().StringSlice("type", nil, "field types, e.g. ENUM,BOOLEAN")
	statsSizesCmd.Flags().StringSlice("field", nil, "list field paths (comma-separated)")

	statsCmd.AddCommand(statsSizeCmd)
	statsCmd.AddCommand(statsValuesCmd)
	statsCmd.AddCommand(statsSizesCmd)

	rootCmd.AddCommand(statsCmd)
}
