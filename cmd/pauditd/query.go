package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/constant"
	"github.com/pushchain/push-audit-node/auditNode/db"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
)

// Output formats
const (
	OutputFormatYAML = "yaml"
	OutputFormatJSON = "json"
)

func eventsCmd() *cobra.Command {
	var (
		status       string
		limit        int
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "events [request_id]",
		Short: "Print audit events from the local event store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.OpenFileDB(filepath.Join(nodeHome, constant.DatabasesSubdir), constant.EventsDBName, true)
			if err != nil {
				return fmt.Errorf("failed to open event database: %w", err)
			}
			events := eventstore.NewStore(database, zerolog.Nop())
			defer events.Close()

			ctx := context.Background()
			var out any
			switch {
			case len(args) == 1:
				id, perr := strconv.ParseUint(args[0], 10, 64)
				if perr != nil {
					return fmt.Errorf("invalid request id %q", args[0])
				}
				out, err = events.GetByRequestID(ctx, id)
			case status != "":
				st := store.Status(strings.ToUpper(status))
				if !st.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
				out, err = events.QueryByStatus(ctx, st)
			default:
				out, err = events.Recent(ctx, limit)
			}
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), out, outputFormat)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only events in this status (AS, TS, SB, DN, ER)")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of most recent events to print")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatYAML, "Output format (yaml|json)")
	return cmd
}

func decodeReportCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "decode-report <hex>",
		Short: "Decode a compressed on-chain report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := registryConfig()
			if err != nil {
				return err
			}
			registry, err := report.NewRegistry(cfg.AnalyzerRegistry, cfg.VulnerabilityRegistry)
			if err != nil {
				return fmt.Errorf("invalid report registry: %w", err)
			}
			r, err := report.NewCodec(registry).Decode(args[0])
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), r, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", OutputFormatJSON, "Output format (yaml|json)")
	return cmd
}

// registryConfig returns the node's config when one exists under --home, else the defaults.
func registryConfig() (*config.Config, error) {
	configFile := filepath.Join(nodeHome, constant.ConfigSubdir, constant.ConfigFileName)
	if _, err := os.Stat(configFile); err != nil {
		return config.LoadDefaultConfig()
	}
	cfg, err := config.Load(nodeHome)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func printOutput(w io.Writer, data any, format string) error {
	switch format {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case OutputFormatYAML:
		// Round-trip through JSON so YAML keys follow the json tags.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var generic any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			return err
		}
		encoder := yaml.NewEncoder(w)
		defer encoder.Close()
		return encoder.Encode(generic)
	default:
		return fmt.Errorf("unsupported output format: %s (use yaml or json)", format)
	}
}
