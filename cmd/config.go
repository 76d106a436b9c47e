package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/trialfunnel-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set trialfunnel configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		b, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Long: `Set a scalar or list setting. List values are comma separated, e.g.
  trialfunnel config set excluded_categories "retail,gift card"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		next := *c
		switch key {
		case "retention_min_visits":
			i, err := strconv.Atoi(val)
			if err != nil || i < 1 {
				return fmt.Errorf("invalid int for retention_min_visits: %v", val)
			}
			next.RetentionMinVisits = i
		case "workers":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for workers: %v", val)
			}
			next.Workers = i
		case "excluded_products":
			next.ExcludedProducts = splitList(val)
		case "excluded_categories":
			next.ExcludedCategories = splitList(val)
		case "aggregate_labels":
			next.AggregateLabels = splitList(val)
		case "period_layout":
			next.PeriodLayout = val
		case "currency_symbol":
			next.CurrencySymbol = val
		case "number_format.decimal":
			next.NumberFormat.Decimal = val
		case "number_format.thousands":
			next.NumberFormat.Thousands = val
		case "snapshots_dir":
			next.SnapshotsDir = val
		case "log_level":
			next.LogLevel = strings.ToLower(val)
		case "log_format":
			next.LogFormat = strings.ToLower(val)
		case "http_addr":
			next.HTTPAddr = val
		case "metrics_file":
			next.MetricsFile = val
		default:
			return fmt.Errorf("unknown key: %s (edit the config file for exclusion_rules and extra_synonyms)", key)
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(&next, cfgFile); err != nil {
			return err
		}
		cfg = &next
		fmt.Fprintln(cmd.OutOrStdout(), "Saved config")
		return nil
	},
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
