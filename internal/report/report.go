// Package report renders pipeline output as Markdown, CSV or JSON.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
	"github.com/KaramelBytes/trialfunnel-cli/internal/utils"
)

// Formats accepted by Write.
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatCSV      = "csv"
)

// Options tunes the Markdown rendering.
type Options struct {
	Title          string
	CurrencySymbol string
	// MaxExclusions caps the exclusion list; 0 means 50.
	MaxExclusions int
	// RollupsOnly hides per-teacher base rows in the metrics table.
	RollupsOnly bool
}

// Write renders out in the requested format.
func Write(w io.Writer, format string, out *pipeline.Output, opt Options) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatMarkdown, "markdown":
		_, err := io.WriteString(w, Markdown(out, opt))
		return err
	case FormatJSON:
		b, err := utils.PrettyJSON(out)
		if err != nil {
			return err
		}
		_, err = w.Write(append(b, '\n'))
		return err
	case FormatCSV:
		return WriteMetricsCSV(w, out.ProcessedData)
	default:
		return fmt.Errorf("unknown format %q (want md, json or csv)", format)
	}
}

// Markdown renders a compact summary in bracketed sections.
func Markdown(out *pipeline.Output, opt Options) string {
	p := message.NewPrinter(language.English)
	cur := opt.CurrencySymbol
	if cur == "" {
		cur = "$"
	}
	st := out.Stats
	total := len(out.NewClientRecords)

	var b strings.Builder
	if opt.Title != "" {
		b.WriteString(fmt.Sprintf("# %s\n\n", opt.Title))
	}
	b.WriteString("[FUNNEL SUMMARY]\n")
	b.WriteString(fmt.Sprintf("Clients: %d (duplicates removed %d, aggregate rows dropped %d)\n",
		total, st.Dedup.Duplicates, st.Clients.SentinelRowsDropped+st.Purchases.SentinelRowsDropped+st.Bookings.SentinelRowsDropped))
	b.WriteString(fmt.Sprintf("Included: %d, excluded: %d\n", st.Included, st.Excluded))
	b.WriteString(fmt.Sprintf("Converted: %d (%.2f%%)\n", st.Converted, pct(st.Converted, st.Included)))
	b.WriteString(fmt.Sprintf("Retained: %d (%.2f%%)\n", st.Retained, pct(st.Retained, st.Included)))
	b.WriteString(p.Sprintf("Revenue: %s%.2f\n", cur, st.Revenue))
	b.WriteString(fmt.Sprintf("Purchases: %d, bookings: %d\n\n", st.Purchases.Kept, st.Bookings.Kept))

	b.WriteString("[METRICS]\n")
	if len(out.ProcessedData) == 0 {
		b.WriteString("(none)\n\n")
	} else {
		b.WriteString("| Period | Location | Teacher | New | Converted | Conv % | Retained | Ret % | Revenue | Avg Rev | Avg Visits |\n")
		b.WriteString("|---|---|---|---:|---:|---:|---:|---:|---:|---:|---:|\n")
		for _, m := range out.ProcessedData {
			if opt.RollupsOnly && !m.Rollup {
				continue
			}
			teacher := safeVal(m.Teacher)
			if m.Rollup {
				teacher = "**" + teacher + "**"
			}
			b.WriteString(p.Sprintf("| %s | %s | %s | %d | %d | %.2f | %d | %.2f | %.2f | %.2f | %.2f |\n",
				safeVal(m.Period), safeVal(m.Location), teacher, m.NewClients,
				m.ConvertedClients, m.ConversionRate, m.RetainedClients, m.RetentionRate,
				m.TotalRevenue, m.AvgRevenuePerConvertedClient, m.AvgVisitsPostTrial))
		}
		b.WriteString("\n")
	}

	b.WriteString("[EXCLUSIONS]\n")
	if len(out.ExcludedRecords) == 0 {
		b.WriteString("(none)\n")
	} else {
		byReason := map[string]int{}
		for _, e := range out.ExcludedRecords {
			byReason[e.Reason]++
		}
		reasons := make([]string, 0, len(byReason))
		for r := range byReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			b.WriteString(fmt.Sprintf("- %s: %d\n", safeVal(r), byReason[r]))
		}
		limit := opt.MaxExclusions
		if limit <= 0 {
			limit = 50
		}
		for i, e := range out.ExcludedRecords {
			if i >= limit {
				b.WriteString(fmt.Sprintf("  ... %d more\n", len(out.ExcludedRecords)-limit))
				break
			}
			b.WriteString(fmt.Sprintf("  - %s (%s)\n", safeName(e.Client.Key()), safeVal(e.Reason)))
		}
	}
	b.WriteString("\n")

	b.WriteString("[NOTES]\n")
	notes := notes(out)
	if len(notes) == 0 {
		b.WriteString("(none)\n")
	}
	for _, n := range notes {
		b.WriteString("- " + n + "\n")
	}
	return b.String()
}

func notes(out *pipeline.Output) []string {
	var notes []string
	codes := make([]string, 0, len(out.Stats.ValidationErrors))
	for c := range out.Stats.ValidationErrors {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		notes = append(notes, fmt.Sprintf("%d client(s) flagged %s", out.Stats.ValidationErrors[c], c))
	}
	for _, p := range out.Periods {
		if p == "unknown" {
			notes = append(notes, "clients with unreadable first visit dates are grouped under period \"unknown\"")
			break
		}
	}
	return notes
}

var csvHeader = []string{
	"period", "location", "teacher", "rollup", "new_clients", "converted_clients", "not_converted_clients",
	"conversion_rate", "retained_clients", "not_retained_clients", "retention_rate",
	"total_revenue", "avg_revenue_per_converted_client", "post_trial_visits", "avg_visits_post_trial",
}

// WriteMetricsCSV writes one row per bucket.
func WriteMetricsCSV(w io.Writer, metrics []model.TeacherPeriodMetric) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	for _, m := range metrics {
		rec := []string{
			m.Period, m.Location, m.Teacher, strconv.FormatBool(m.Rollup),
			strconv.Itoa(m.NewClients), strconv.Itoa(m.ConvertedClients), strconv.Itoa(m.NotConvertedClients),
			f(m.ConversionRate), strconv.Itoa(m.RetainedClients), strconv.Itoa(m.NotRetainedClients), f(m.RetentionRate),
			f(m.TotalRevenue), f(m.AvgRevenuePerConvertedClient), strconv.Itoa(m.PostTrialVisits), f(m.AvgVisitsPostTrial),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) * 100 / float64(d)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
