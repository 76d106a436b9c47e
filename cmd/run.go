package cmd

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	cfgpkg "github.com/KaramelBytes/trialfunnel-cli/internal/config"
	"github.com/KaramelBytes/trialfunnel-cli/internal/metrics"
	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
	"github.com/KaramelBytes/trialfunnel-cli/internal/progress"
	"github.com/KaramelBytes/trialfunnel-cli/internal/report"
	"github.com/KaramelBytes/trialfunnel-cli/internal/snapshot"
	"github.com/KaramelBytes/trialfunnel-cli/internal/tabular"
	"github.com/KaramelBytes/trialfunnel-cli/internal/utils"
)

var (
	runClients     string
	runBookings    string
	runPurchases   string
	runOut         string
	runFormat      string
	runSave        bool
	runName        string
	runQuiet       bool
	runSheet       string
	runMaxRows     int
	runRollupsOnly bool
	runMetricsFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute the trial funnel from three exports",
	Example: `  trialfunnel run --clients new_clients.csv --bookings bookings.csv --purchases sales.xlsx
  trialfunnel run --clients c.csv --bookings b.csv --purchases p.csv --format json --out funnel.json --save --name january`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		format := strings.ToLower(strings.TrimSpace(runFormat))
		switch format {
		case "md", "markdown", "json", "csv":
		default:
			return fmt.Errorf("invalid --format: %s (use md, json or csv)", runFormat)
		}

		topt := tabular.DefaultOptions()
		if runMaxRows > 0 {
			topt.MaxRows = runMaxRows
		}
		topt.Sheet = runSheet
		in := &pipeline.Input{}
		var sources []snapshot.Source
		for _, src := range []struct {
			role string
			path string
			dst  *[]model.RawRow
		}{
			{"clients", runClients, &in.NewClients},
			{"bookings", runBookings, &in.Bookings},
			{"purchases", runPurchases, &in.Purchases},
		} {
			rows, info, err := readSource(src.role, src.path, topt)
			if err != nil {
				return err
			}
			*src.dst = rows
			sources = append(sources, info)
		}

		runID := uuid.NewString()
		opt := c.Options()
		opt.Logger = logger.With("run_id", runID)

		var (
			rep     progress.Reporter = progress.Nop
			events  *progress.Channel
			printed chan struct{}
		)
		if !runQuiet {
			// Stage lines print from their own goroutine; the pipeline never waits on stderr.
			events = progress.NewChannel(len(progress.Percent))
			printed = make(chan struct{})
			errOut := cmd.ErrOrStderr()
			go func() {
				defer close(printed)
				for e := range events.C {
					fmt.Fprintf(errOut, "[%3d%%] %s\n", e.Percent, e.Stage)
				}
			}()
			rep = events
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		out, err := pipeline.Run(ctx, in, opt, rep)
		if events != nil {
			events.Close()
			<-printed
			if n := events.Dropped(); n > 0 {
				logger.Debug("progress events dropped", "run_id", runID, "dropped", n)
			}
		}
		if err != nil {
			return fmt.Errorf("run pipeline: %w", err)
		}

		var buf bytes.Buffer
		title := runName
		if title == "" {
			title = "Trial funnel"
		}
		ropt := report.Options{Title: title, CurrencySymbol: c.CurrencySymbol, RollupsOnly: runRollupsOnly}
		if err := report.Write(&buf, format, out, ropt); err != nil {
			return err
		}
		if runOut != "" {
			if err := utils.SafeWriteFile(runOut, buf.Bytes()); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			if !runQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %s\n", runOut)
			}
		} else {
			if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
				return err
			}
		}

		if runSave {
			digest, err := configDigest(c)
			if err != nil {
				return err
			}
			s := snapshot.New(runName, sources, digest, out)
			if err := snapshot.NewStore(c.SnapshotsDir).Save(s); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			logger.Info("snapshot saved", "run_id", runID, "snapshot_id", s.ID)
			if !runQuiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved snapshot %s\n", s.ID)
			}
		}

		metricsFile := c.MetricsFile
		if runMetricsFile != "" {
			metricsFile = runMetricsFile
		}
		if metricsFile != "" {
			exp := metrics.New()
			exp.Observe(out)
			if err := exp.WriteTextfile(metricsFile); err != nil {
				return err
			}
		}
		return nil
	},
}

func readSource(role, path string, opt tabular.Options) ([]model.RawRow, snapshot.Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, snapshot.Source{}, fmt.Errorf("--%s is required", role)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, snapshot.Source{}, fmt.Errorf("resolve %s path: %w", role, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, snapshot.Source{}, fmt.Errorf("%s file: %w", role, err)
	}
	rows, err := tabular.ReadFile(abs, opt)
	if err != nil {
		return nil, snapshot.Source{}, fmt.Errorf("read %s: %w", role, err)
	}
	logger.Debug("read source", "role", role, "path", abs, "rows", len(rows))
	return rows, snapshot.Source{Role: role, Path: abs, Rows: len(rows), ModTime: info.ModTime()}, nil
}

// configDigest fingerprints the rules a snapshot was computed with.
func configDigest(c *cfgpkg.Global) (string, error) {
	b, err := yaml.Marshal(c.Options())
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16], nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runClients, "clients", "", "new-clients export (csv, tsv or xlsx)")
	runCmd.Flags().StringVar(&runBookings, "bookings", "", "bookings export (csv, tsv or xlsx)")
	runCmd.Flags().StringVar(&runPurchases, "purchases", "", "payments export (csv, tsv or xlsx)")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write the report to this file instead of stdout")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "md", "report format: md, json or csv")
	runCmd.Flags().BoolVar(&runSave, "save", false, "save the run as a snapshot")
	runCmd.Flags().StringVar(&runName, "name", "", "snapshot and report title")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress progress lines")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "sheet name for xlsx inputs (default first sheet)")
	runCmd.Flags().IntVar(&runMaxRows, "max-rows", 0, "limit rows read per file (0 = default)")
	runCmd.Flags().BoolVar(&runRollupsOnly, "rollups-only", false, "show only rollup rows in the markdown metrics table")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus textfile metrics here (overrides config)")
	_ = runCmd.MarkFlagRequired("clients")
	_ = runCmd.MarkFlagRequired("bookings")
	_ = runCmd.MarkFlagRequired("purchases")
}
