// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of ctgov",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("ctgov %s\n", version)
		if api, _ := cmd.Flags().GetBool("api"); api {
			v, err := cli.client.Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("api %s (data %s)\n", v.APIVersion, v.DataTimestamp)
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("api", false, "also print the API and data versions")
	rootCmd.AddCommand(versionCmd)
}
