package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/snowlift/pkg/compression"
	"github.com/ajitpratap0/snowlift/pkg/staging"
)

func newInspectCommand() *cobra.Command {
	var codec string
	var limit int

	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Decode a staged CSV artifact and print its header and rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			alg := compression.Detect(path)
			if codec != "" {
				var err error
				if alg, err = compression.Parse(codec); err != nil {
					return err
				}
			}

			header, rows, err := staging.Read(path, alg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "columns: %s\n", strings.Join(header, ", "))
			fmt.Fprintf(out, "rows: %d\n", len(rows))
			for i, row := range rows {
				if i >= limit {
					break
				}
				fmt.Fprintln(out, strings.Join(row, ","))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&codec, "compression", "", "Codec of the file (default: from the file suffix)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of rows to print")
	return cmd
}
