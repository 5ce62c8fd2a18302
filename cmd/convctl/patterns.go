package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/patterns"
)

func newPatternsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and validate pattern configurations",
	}

	validateCmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a pattern YAML file and list every violation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patternOpts, err := opts.patternOptions()
			if err != nil {
				return err
			}

			cfg, err := patterns.Load(args[0], patternOpts...)
			if err != nil {
				violations := errors.Violations(err)
				for _, v := range violations {
					fmt.Fprintln(cmd.ErrOrStderr(), "  -", v)
				}
				return errors.Wrap(err, fmt.Sprintf("%s: %d violation(s)", args[0], len(violations)))
			}

			return printJSON(cmd, map[string]interface{}{
				"file":       args[0],
				"valid":      true,
				"categories": cfg.Describe(),
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the categories of the active pattern configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patternOpts, err := opts.patternOptions()
			if err != nil {
				return err
			}
			cfg, err := patterns.LoadOrDefault(opts.patternsFile, patternOpts...)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{
				"categories":       cfg.Describe(),
				"match_timeout_ms": cfg.MatchTimeout().Milliseconds(),
			})
		},
	}

	cmd.AddCommand(validateCmd, showCmd)
	return cmd
}
