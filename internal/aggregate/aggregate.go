// Package aggregate rolls per-client outcomes into teacher, location and
// period buckets with zero-safe rate metrics.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
)

// Labels used for rollups and missing dimensions.
const (
	AllTeachers   = "All Teachers"
	AllLocations  = "All Locations"
	Unassigned    = "Unassigned"
	UnknownPeriod = "unknown"
)

// DefaultPeriodLayout buckets by calendar month.
const DefaultPeriodLayout = "2006-01"

// Options controls bucketing.
type Options struct {
	// PeriodLayout is a time layout applied to the first visit date.
	PeriodLayout string
}

// Result is the aggregated view of one run.
type Result struct {
	Metrics   []model.TeacherPeriodMetric
	Teachers  []string
	Locations []string
	Periods   []string
}

type bucketKey struct {
	teacher, location, period string
}

type counts struct {
	newClients, retained, converted, visits int
	revenue                                 float64
}

func (c *counts) add(o counts) {
	c.newClients += o.newClients
	c.retained += o.retained
	c.converted += o.converted
	c.visits += o.visits
	c.revenue += o.revenue
}

// Aggregate buckets every outcome not flagged as excluded. Rollup rows are
// sums of base buckets; clients are scanned exactly once.
func Aggregate(outcomes []model.ClientOutcome, opt Options) Result {
	layout := opt.PeriodLayout
	if strings.TrimSpace(layout) == "" {
		layout = DefaultPeriodLayout
	}

	base := map[bucketKey]*counts{}
	for _, o := range outcomes {
		if o.Excluded {
			continue
		}
		k := bucketKey{
			teacher:  label(o.Client.Teacher),
			location: label(o.Client.FirstVisitLocation),
			period:   Period(o.Client.FirstVisitDate, layout),
		}
		b := base[k]
		if b == nil {
			b = &counts{}
			base[k] = b
		}
		b.newClients++
		b.visits += o.Retention.VisitsPostTrial
		if o.Retention.IsRetained() {
			b.retained++
		}
		if o.Conversion.IsConverted() {
			b.converted++
			b.revenue += o.Conversion.Revenue()
		}
	}

	rollups := map[bucketKey]*counts{}
	bump := func(k bucketKey, c counts) {
		r := rollups[k]
		if r == nil {
			r = &counts{}
			rollups[k] = r
		}
		r.add(c)
	}
	teachers, locations, periods := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	for k, c := range base {
		teachers[k.teacher] = struct{}{}
		locations[k.location] = struct{}{}
		periods[k.period] = struct{}{}
		bump(bucketKey{teacher: AllTeachers, location: k.location, period: k.period}, *c)
		bump(bucketKey{teacher: k.teacher, location: AllLocations, period: k.period}, *c)
		bump(bucketKey{teacher: AllTeachers, location: AllLocations, period: k.period}, *c)
	}

	metrics := make([]model.TeacherPeriodMetric, 0, len(base)+len(rollups))
	for k, c := range base {
		metrics = append(metrics, finalize(k, *c, false))
	}
	for k, c := range rollups {
		metrics = append(metrics, finalize(k, *c, true))
	}
	sort.Slice(metrics, func(i, j int) bool { return less(metrics[i], metrics[j]) })

	return Result{
		Metrics:   metrics,
		Teachers:  sortedKeys(teachers),
		Locations: sortedKeys(locations),
		Periods:   sortedKeys(periods),
	}
}

// Period formats the first visit date with layout, or UnknownPeriod.
func Period(firstVisit, layout string) string {
	t, ok := normalize.ParseDate(firstVisit)
	if !ok {
		return UnknownPeriod
	}
	return t.Format(layout)
}

func label(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return Unassigned
	}
	return s
}

func finalize(k bucketKey, c counts, rollup bool) model.TeacherPeriodMetric {
	return model.TeacherPeriodMetric{
		Teacher:                      k.teacher,
		Location:                     k.location,
		Period:                       k.period,
		NewClients:                   c.newClients,
		RetainedClients:              c.retained,
		NotRetainedClients:           c.newClients - c.retained,
		ConvertedClients:             c.converted,
		NotConvertedClients:          c.newClients - c.converted,
		TotalRevenue:                 round2(c.revenue),
		PostTrialVisits:              c.visits,
		RetentionRate:                round2(safeDiv(float64(c.retained), float64(c.newClients)) * 100),
		ConversionRate:               round2(safeDiv(float64(c.converted), float64(c.newClients)) * 100),
		AvgRevenuePerConvertedClient: round2(safeDiv(c.revenue, float64(c.converted))),
		AvgVisitsPostTrial:           round2(safeDiv(float64(c.visits), float64(c.newClients))),
		Rollup:                       rollup,
	}
}

// rank orders rows within a period: base rows, then per-location rollups,
// per-teacher rollups and the period total.
func rank(m model.TeacherPeriodMetric) int {
	switch {
	case !m.Rollup:
		return 0
	case m.Teacher == AllTeachers && m.Location == AllLocations:
		return 3
	case m.Teacher == AllTeachers:
		return 1
	default:
		return 2
	}
}

func less(a, b model.TeacherPeriodMetric) bool {
	if a.Period != b.Period {
		return a.Period < b.Period
	}
	if ra, rb := rank(a), rank(b); ra != rb {
		return ra < rb
	}
	if a.Location != b.Location {
		return a.Location < b.Location
	}
	return a.Teacher < b.Teacher
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Select returns the metrics matching every non-empty filter, compared
// case-insensitively. Order is preserved.
func Select(metrics []model.TeacherPeriodMetric, teacher, location, period string) []model.TeacherPeriodMetric {
	out := make([]model.TeacherPeriodMetric, 0, len(metrics))
	for _, m := range metrics {
		if !matches(m.Teacher, teacher) || !matches(m.Location, location) || !matches(m.Period, period) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func matches(v, want string) bool {
	return want == "" || strings.EqualFold(v, strings.TrimSpace(want))
}
