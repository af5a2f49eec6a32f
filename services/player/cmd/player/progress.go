package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/example/course-platform/services/player/internal/progressapi"
)

func newProgressCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Inspect stored progress",
	}

	getCmd := &cobra.Command{
		Use:   "get COURSE",
		Short: "Show progress for one course",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := progressapi.New(root.apiURL, root.token)
			if err != nil {
				return err
			}
			rec, err := client.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recently updated courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := progressapi.New(root.apiURL, root.token)
			if err != nil {
				return err
			}
			recs, err := client.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 25, "maximum number of courses")

	cmd.AddCommand(getCmd, listCmd)
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
