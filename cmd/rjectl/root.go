package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	portssvc "github.com/SscSPs/recurring_journal_engine/internal/core/ports/services"
	"github.com/SscSPs/recurring_journal_engine/internal/middleware"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// serviceLoader opens the services a command needs. The returned func releases them.
type serviceLoader func(ctx context.Context, logger *slog.Logger) (*portssvc.ServiceContainer, func(), error)

type app struct {
	load     serviceLoader
	services *portssvc.ServiceContainer
	output   string
	verbose  bool
	logger   *slog.Logger
}

func newRootCmd(load serviceLoader) *cobra.Command {
	a := &app{load: load}

	root := &cobra.Command{
		Use:           "rjectl",
		Short:         "Operate recurring journal definitions",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.output != "json" && a.output != "yaml" {
				return fmt.Errorf("unknown output format %q, expected json or yaml", a.output)
			}
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(middleware.WithLogger(cmd.Context(), a.logger))
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.output, "output", "o", "json", "Output format: json or yaml")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log debug output to stderr")

	root.AddCommand(
		newPreviewCmd(a),
		newRunCmd(a),
		newRunDueCmd(a),
		newStatsCmd(a),
	)
	return root
}

// withServices loads the services for the duration of one command.
func (a *app) withServices(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		services, release, err := a.load(cmd.Context(), a.logger)
		if err != nil {
			return fmt.Errorf("initialize services: %w", err)
		}
		defer release()
		a.services = services
		return run(cmd, args)
	}
}

// print writes v to w in the selected format.
func (a *app) print(w io.Writer, v any) error {
	if a.output == "yaml" {
		// yaml keys follow the json field names
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
