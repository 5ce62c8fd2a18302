// Package main implements convctl, an offline CLI that analyzes chat logs,
// diarized transcripts and single lines with the conversation analyzer.
package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"conversation-analyzer/pkg/analysis"
	"conversation-analyzer/pkg/errors"
	"conversation-analyzer/pkg/patterns"
	"conversation-analyzer/pkg/version"
)

// options holds the global flags shared by every command
type options struct {
	patternsFile string
	logLevel     string
	matchTimeout string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "convctl",
		Short: "Analyze customer support conversations offline",
		Long: `convctl runs the conversation analyzer without the HTTP service.

It reads JSON chat logs, diarized transcripts or single lines and prints the
analysis as indented JSON.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.patternsFile, "patterns", "", "pattern YAML file (default: embedded pattern set)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	rootCmd.PersistentFlags().StringVar(&opts.matchTimeout, "match-timeout", "100ms", "regular expression match timeout")

	rootCmd.AddCommand(newAnalyzeCmd(opts))
	rootCmd.AddCommand(newPatternsCmd(opts))

	return rootCmd
}

func (o *options) logger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(o.logLevel)
	if err != nil {
		return nil, errors.NewInvalidInput("invalid --log-level: " + o.logLevel)
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger, nil
}

func (o *options) patternOptions() ([]patterns.Option, error) {
	timeout, err := time.ParseDuration(o.matchTimeout)
	if err != nil {
		return nil, errors.NewInvalidInput("invalid --match-timeout: " + o.matchTimeout)
	}
	return []patterns.Option{patterns.WithMatchTimeout(timeout)}, nil
}

// analyzer loads the pattern configuration and builds an analyzer
func (o *options) analyzer(cmd *cobra.Command) (*analysis.Analyzer, *logrus.Logger, error) {
	logger, err := o.logger(cmd)
	if err != nil {
		return nil, nil, err
	}
	patternOpts, err := o.patternOptions()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := patterns.LoadOrDefault(o.patternsFile, patternOpts...)
	if err != nil {
		return nil, nil, err
	}

	analyzer, err := analysis.New(cfg, analysis.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return analyzer, logger, nil
}

// readInput reads a file, or stdin when path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading "+path)
	}
	return data, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
