// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ctgov/pkg/types"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the study schema (fields, enums, search areas)",
	Long: `Schema prints the field tree, enum types and search areas the API
publishes. These are the same snapshots the studies command validates
against.`,
}

// --- fields subcommand ---

var schemaFieldsCmd = &cobra.Command{
	Use:   "fields [path]",
	Short: "Print the field tree, or the leaf paths under one field",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaFields,
}

func runSchemaFields(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) == 1 {
		paths, err := cli.registry.Leaves(ctx, args[0])
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, paths)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	}

	indexed, _ := cmd.Flags().GetBool("indexed-only")
	historic, _ := cmd.Flags().GetBool("historic-only")
	roots, err := cli.registry.Load(ctx, indexed, historic)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(os.Stdout, roots)
	}
	printFieldTree(os.Stdout, roots, 0)
	return nil
}

func printFieldTree(w io.Writer, fields []types.FieldDescriptor, depth int) {
	for _, f := range fields {
		kind := string(f.Type)
		if f.IsEnum {
			kind = f.DataType
		}
		fmt.Fprintf(w, "%s%-*s  %s\n", strings.Repeat("  ", depth), 40-2*depth, f.Name, kind)
		printFieldTree(w, f.Children, depth+1)
	}
}

// --- enums subcommand ---

var schemaEnumsCmd = &cobra.Command{
	Use:   "enums [type]",
	Short: "List enum types, or the values of one type",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSchemaEnums,
}

func runSchemaEnums(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(args) == 0 {
		enums, err := cli.registry.Enums(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, enums)
		}
		for _, et := range enums {
			fmt.Printf("%-36s  %3d values  %s\n", et.Type, len(et.Values), strings.Join(et.Pieces, ", "))
		}
		return nil
	}

	et, err := cli.registry.ResolveEnum(ctx, args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(os.Stdout, et)
	}
	fmt.Printf("%-36s  %s\n", "Value", "Legacy value")
	fmt.Println(strings.Repeat("-", 80))
	for _, v := range et.Values {
		fmt.Printf("%-36s  %s\n", v.Value, v.LegacyValue)
		for piece, ex := range v.Exceptions {
			fmt.Printf("  %-34s  %s (%s)\n", "", ex, piece)
		}
	}
	return nil
}

// --- areas subcommand ---

var schemaAreasCmd = &cobra.Command{
	Use:   "areas",
	Short: "List search areas usable as query.<param>",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := cli.registry.Areas(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, docs)
		}
		for _, doc := range docs {
			fmt.Printf("%s\n", doc.Name)
			for _, a := range doc.Areas {
				param := "-"
				if a.Param != "" {
					param = "query." + a.Param
				}
				fmt.Printf("  %-20s  %-28s  %d parts\n", param, a.Name, len(a.Parts))
			}
		}
		return nil
	},
}

// --- legacy subcommand ---

var schemaLegacyCmd = &cobra.Command{
	Use:   "legacy <enum-type> <piece> <value>",
	Short: "Print the classic-API spelling of an enum value",
	Long: `Legacy maps a current enum value to the spelling the classic API used
for a field of the given piece, e.g.

  ctgov schema legacy Phase Phase PHASE2`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cli.registry.LegacyValueFor(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

func init() {
	schemaCmd.PersistentFlags().Bool("json", false, "output as JSON")
	schemaFieldsCmd.Flags().Bool("indexed-only", false, "include fields that are only indexed")
	schemaFieldsCmd.Flags().Bool("historic-only", false, "include fields only present in historic versions")

	schemaCmd.AddCommand(schemaFieldsCmd)
	schemaCmd.AddCommand(schemaEnumsCmd)
	schemaCmd.AddCommand(schemaAreasCmd)
	schemaCmd.AddCommand(schemaLegacyCmd)

	rootCmd.AddCommand(schemaCmd)
}
