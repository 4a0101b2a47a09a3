package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/snowlift/pkg/config"
	"github.com/ajitpratap0/snowlift/pkg/errors"
)

func newConfigCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	var sourceOnly bool
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without connecting anywhere",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			if sourceOnly {
				err = cfg.ValidateSource()
			} else {
				err = cfg.Validate()
			}
			if err != nil {
				if errors.IsType(err, errors.ErrorTypeMissingConfig) {
					for _, v := range errors.Violations(err) {
						fmt.Fprintln(cmd.ErrOrStderr(), "also invalid:", v)
					}
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	validate.Flags().BoolVar(&sourceOnly, "source-only", false, "Only check what the backup command needs")

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load()
			if err != nil {
				return err
			}
			out, err := config.Render(cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json)")

	cmd.AddCommand(validate, show)
	return cmd
}
