// Package pipeline runs the trial funnel: normalize, dedupe, classify,
// exclude and aggregate. It performs no I/O.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/trialfunnel-cli/internal/aggregate"
	"github.com/KaramelBytes/trialfunnel-cli/internal/classify"
	"github.com/KaramelBytes/trialfunnel-cli/internal/exclusion"
	"github.com/KaramelBytes/trialfunnel-cli/internal/logging"
	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
	"github.com/KaramelBytes/trialfunnel-cli/internal/progress"
)

// Input holds the raw rows of the three exports. Every source must be
// non-nil; an empty slice is fine.
type Input struct {
	NewClients []model.RawRow `json:"new_clients"`
	Bookings   []model.RawRow `json:"bookings"`
	Purchases  []model.RawRow `json:"purchases"`
}

// Options configures one run. The zero value uses the defaults.
type Options struct {
	Normalize          normalize.Options
	Conversion         classify.ConversionRules
	MinPostTrialVisits int
	// Exclusions nil means exclusion.DefaultRules; an empty slice disables exclusion.
	Exclusions   []exclusion.Rule
	PeriodLayout string
	// Workers bounds classification concurrency; <= 0 means runtime.NumCPU().
	Workers int
	Logger  *slog.Logger
}

// DefaultOptions mirrors the stock business rules.
func DefaultOptions() Options {
	return Options{
		Normalize:          normalize.DefaultOptions(),
		Conversion:         classify.DefaultConversionRules(),
		MinPostTrialVisits: classify.DefaultMinPostTrialVisits,
		Exclusions:         exclusion.DefaultRules(),
		PeriodLayout:       aggregate.DefaultPeriodLayout,
	}
}

// Stats summarizes a run.
type Stats struct {
	Clients          normalize.Stats          `json:"clients"`
	Purchases        normalize.Stats          `json:"purchases"`
	Bookings         normalize.Stats          `json:"bookings"`
	Dedup            normalize.DedupStats     `json:"dedup"`
	Included         int                      `json:"included"`
	Excluded         int                      `json:"excluded"`
	Converted        int                      `json:"converted"`
	Retained         int                      `json:"retained"`
	Revenue          float64                  `json:"revenue"`
	Buckets          int                      `json:"buckets"`
	ValidationErrors map[string]int           `json:"validation_errors"`
	// StageDurations is wall-clock timing for the metrics exporter. It is
	// left out of JSON so identical input always serializes identically.
	StageDurations map[string]time.Duration `json:"-"`
}

// Output is everything a run produces. Record lists follow client input order.
type Output struct {
	ProcessedData          []model.TeacherPeriodMetric `json:"processed_data"`
	Locations              []string                    `json:"locations"`
	Teachers               []string                    `json:"teachers"`
	Periods                []string                    `json:"periods"`
	IncludedRecords        []model.ClientOutcome       `json:"included_records"`
	ExcludedRecords        []model.ExclusionRecord     `json:"excluded_records"`
	NewClientRecords       []model.ClientOutcome       `json:"new_client_records"`
	ConvertedClientRecords []model.ClientOutcome       `json:"converted_client_records"`
	RetainedClientRecords  []model.ClientOutcome       `json:"retained_client_records"`
	Stats                  Stats                       `json:"stats"`
}

// Run executes every stage. It fails only on a contract violation (before
// any stage runs or any event is reported) or when ctx is cancelled.
func Run(ctx context.Context, in *Input, opt Options, rep progress.Reporter) (*Output, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	log := opt.Logger
	if log == nil {
		log = logging.Discard()
	}
	guard := progress.NewGuard(rep)
	out := &Output{Stats: Stats{
		ValidationErrors: map[string]int{},
		StageDurations:   map[string]time.Duration{},
	}}
	timer := time.Now()
	done := func(stage string) error {
		out.Stats.StageDurations[stage] = time.Since(timer)
		timer = time.Now()
		guard.Stage(stage)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("after %s: %w", stage, err)
		}
		return nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nopt := opt.Normalize
	if nopt.Synonyms == nil && nopt.AggregateLabels == nil {
		nopt = normalize.DefaultOptions()
	}
	n := normalize.New(nopt)
	clients, cst := n.Clients(in.NewClients)
	purchases, pst := n.Purchases(in.Purchases)
	bookings, bst := n.Bookings(in.Bookings)
	out.Stats.Clients, out.Stats.Purchases, out.Stats.Bookings = cst, pst, bst
	log.Debug("normalized sources", "stage", progress.StageParse,
		"clients", cst.Kept, "purchases", pst.Kept, "bookings", bst.Kept,
		"sentinel_rows", cst.SentinelRowsDropped+pst.SentinelRowsDropped+bst.SentinelRowsDropped)
	if err := done(progress.StageParse); err != nil {
		return nil, err
	}

	clients, dst := normalize.Dedup(clients)
	out.Stats.Dedup = dst
	log.Debug("deduplicated clients", "stage", progress.StageDedupe, "clients", dst.Unique, "duplicates", dst.Duplicates)
	if err := done(progress.StageDedupe); err != nil {
		return nil, err
	}

	rules := opt.Conversion
	if rules.ExcludedProducts == nil && rules.ExcludedCategories == nil && rules.CurrencySymbol == "" {
		rules = classify.DefaultConversionRules()
	}
	outcomes, err := classifyAll(ctx, clients,
		classify.NewConversionClassifier(purchases, rules),
		classify.NewRetentionClassifier(bookings, opt.MinPostTrialVisits),
		opt.Workers)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	if err := done(progress.StageClassify); err != nil {
		return nil, err
	}

	exRules := opt.Exclusions
	if exRules == nil {
		exRules = exclusion.DefaultRules()
	}
	filter := exclusion.New(exRules)
	out.NewClientRecords = outcomes
	out.IncludedRecords = make([]model.ClientOutcome, 0, len(outcomes))
	out.ExcludedRecords = []model.ExclusionRecord{}
	out.ConvertedClientRecords = []model.ClientOutcome{}
	out.RetainedClientRecords = []model.ClientOutcome{}
	for i := range outcomes {
		o := &outcomes[i]
		for _, code := range o.Conversion.ValidationErrors {
			out.Stats.ValidationErrors[code]++
		}
		if rec, ok := filter.Exclude(o.Client); ok {
			o.Excluded = true
			out.ExcludedRecords = append(out.ExcludedRecords, rec)
			continue
		}
		out.IncludedRecords = append(out.IncludedRecords, *o)
		if o.Conversion.IsConverted() {
			out.ConvertedClientRecords = append(out.ConvertedClientRecords, *o)
			out.Stats.Revenue += o.Conversion.Revenue()
		}
		if o.Retention.IsRetained() {
			out.RetainedClientRecords = append(out.RetainedClientRecords, *o)
		}
	}
	out.Stats.Included = len(out.IncludedRecords)
	out.Stats.Excluded = len(out.ExcludedRecords)
	out.Stats.Converted = len(out.ConvertedClientRecords)
	out.Stats.Retained = len(out.RetainedClientRecords)
	log.Debug("applied exclusions", "stage", progress.StageExclude, "included", out.Stats.Included, "excluded", out.Stats.Excluded)
	if err := done(progress.StageExclude); err != nil {
		return nil, err
	}

	agg := aggregate.Aggregate(outcomes, aggregate.Options{PeriodLayout: opt.PeriodLayout})
	out.ProcessedData = agg.Metrics
	out.Teachers, out.Locations, out.Periods = agg.Teachers, agg.Locations, agg.Periods
	out.Stats.Buckets = len(agg.Metrics)
	if err := done(progress.StageAggregate); err != nil {
		return nil, err
	}

	log.Info("funnel computed",
		"clients", len(outcomes), "converted", out.Stats.Converted, "retained", out.Stats.Retained,
		"excluded", out.Stats.Excluded, "buckets", out.Stats.Buckets)
	if err := done(progress.StageFinalize); err != nil {
		return nil, err
	}
	return out, nil
}

// classifyAll fans clients out over a bounded errgroup. Each goroutine
// writes only its own slots, so results stay in client order.
func classifyAll(ctx context.Context, clients []model.ClientProfile, cc *classify.ConversionClassifier, rc *classify.RetentionClassifier, workers int) ([]model.ClientOutcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	outcomes := make([]model.ClientOutcome, len(clients))
	if len(clients) == 0 {
		return outcomes, ctx.Err()
	}
	chunk := (len(clients) + workers*4 - 1) / (workers * 4)
	if chunk < 1 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(clients); lo += chunk {
		if gctx.Err() != nil {
			break
		}
		hi := min(lo+chunk, len(clients))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := clients[i]
				outcomes[i] = model.ClientOutcome{
					Client:     c,
					Conversion: cc.Classify(c),
					Retention:  rc.Classify(c),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
