// Package normalize maps loosely-labelled export rows onto canonical records
// and collapses duplicate clients.
package normalize

import (
	"sort"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

// DefaultAggregateLabels are report artifacts that appear as pseudo-rows in exports.
var DefaultAggregateLabels = []string{"All Trainers", "All Teachers", "All Locations", "Total", "Grand Total"}

// Options configures a Normalizer.
type Options struct {
	Synonyms        Synonyms
	AggregateLabels []string
	Numbers         NumberFormat
}

// DefaultOptions returns the stock synonym table and aggregate denylist.
func DefaultOptions() Options {
	return Options{
		Synonyms:        DefaultSynonyms(),
		AggregateLabels: append([]string(nil), DefaultAggregateLabels...),
	}
}

// Stats counts what the normalizer saw for one source.
type Stats struct {
	Rows                int `json:"rows"`
	Kept                int `json:"kept"`
	SentinelRowsDropped int `json:"sentinel_rows_dropped"`
}

// Normalizer resolves synonyms and coerces raw cells. It never fails: missing
// fields come back empty and are flagged later by the classifiers.
type Normalizer struct {
	resolvers map[Source]resolver
	denylist  map[string]struct{}
	numbers   NumberFormat
}

// New builds a Normalizer. Zero-valued options fall back to the defaults.
func New(opt Options) *Normalizer {
	syn := opt.Synonyms
	if syn == nil {
		syn = DefaultSynonyms()
	}
	labels := opt.AggregateLabels
	if labels == nil {
		labels = DefaultAggregateLabels
	}
	n := &Normalizer{
		resolvers: make(map[Source]resolver, len(syn)),
		denylist:  make(map[string]struct{}, len(labels)),
		numbers:   opt.Numbers,
	}
	for src, fields := range syn {
		n.resolvers[src] = newResolver(fields)
	}
	for _, l := range labels {
		if f := Fold(l); f != "" {
			n.denylist[f] = struct{}{}
		}
	}
	return n
}

// IsAggregateLabel reports whether v is one of the denylisted report artifacts.
func (n *Normalizer) IsAggregateLabel(v string) bool {
	_, ok := n.denylist[Fold(v)]
	return ok
}

func (n *Normalizer) anyAggregate(vals ...string) bool {
	for _, v := range vals {
		if v != "" && n.IsAggregateLabel(v) {
			return true
		}
	}
	return false
}

// fold indexes the row by folded label, visiting columns in sorted order so
// collisions resolve the same way on every run.
func fold(row model.RawRow) foldedRow {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(foldedRow, len(row))
	for _, k := range keys {
		lk := labelKey(k)
		if lk == "" {
			continue
		}
		if prev, ok := out[lk]; ok && scalarString(prev) != "" {
			continue
		}
		out[lk] = row[k]
	}
	return out
}

// lookup returns the first non-blank cell among the field's synonyms.
func (r resolver) lookup(row foldedRow, f Field) any {
	for _, k := range r[f] {
		if v, ok := row[k]; ok && scalarString(v) != "" {
			return v
		}
	}
	return nil
}

func (r resolver) str(row foldedRow, f Field) string { return scalarString(r.lookup(row, f)) }

// Clients maps new-client rows onto profiles. Position is the source row index.
func (n *Normalizer) Clients(rows []model.RawRow) ([]model.ClientProfile, Stats) {
	r := n.resolvers[SourceClients]
	st := Stats{Rows: len(rows)}
	out := make([]model.ClientProfile, 0, len(rows))
	for i, raw := range rows {
		row := fold(raw)
		c := model.ClientProfile{
			MemberID:           r.str(row, FieldMemberID),
			FirstName:          r.str(row, FieldFirstName),
			LastName:           r.str(row, FieldLastName),
			Email:              NormalizeEmail(r.str(row, FieldEmail)),
			FirstVisitDate:     r.str(row, FieldFirstVisitDate),
			FirstVisitLocation: r.str(row, FieldFirstVisitLocation),
			MembershipUsed:     r.str(row, FieldMembershipUsed),
			Teacher:            r.str(row, FieldTeacher),
			Position:           i,
		}
		if n.anyAggregate(c.Teacher, c.FirstVisitLocation) {
			st.SentinelRowsDropped++
			continue
		}
		out = append(out, c)
	}
	st.Kept = len(out)
	return out, st
}

// Purchases maps payment rows onto purchase records.
func (n *Normalizer) Purchases(rows []model.RawRow) ([]model.PurchaseRecord, Stats) {
	r := n.resolvers[SourcePurchases]
	st := Stats{Rows: len(rows)}
	out := make([]model.PurchaseRecord, 0, len(rows))
	for i, raw := range rows {
		row := fold(raw)
		p := model.PurchaseRecord{
			Email:    NormalizeEmail(r.str(row, FieldEmail)),
			MemberID: r.str(row, FieldMemberID),
			Category: r.str(row, FieldCategory),
			Product:  r.str(row, FieldProduct),
			Refunded: scalarBool(r.lookup(row, FieldRefunded)),
			Position: i,
		}
		if v, ok := scalarFloat(r.lookup(row, FieldValue), n.numbers); ok {
			p.Value = v
		}
		p.Date, p.RawDate, _ = scalarDate(r.lookup(row, FieldDate))
		if n.anyAggregate(p.Category) {
			st.SentinelRowsDropped++
			continue
		}
		out = append(out, p)
	}
	st.Kept = len(out)
	return out, st
}

// Bookings maps class-booking rows onto booking records.
func (n *Normalizer) Bookings(rows []model.RawRow) ([]model.BookingRecord, Stats) {
	r := n.resolvers[SourceBookings]
	st := Stats{Rows: len(rows)}
	out := make([]model.BookingRecord, 0, len(rows))
	for i, raw := range rows {
		row := fold(raw)
		b := model.BookingRecord{
			Email:    NormalizeEmail(r.str(row, FieldEmail)),
			MemberID: r.str(row, FieldMemberID),
			Teacher:  r.str(row, FieldTeacher),
			Location: r.str(row, FieldLocation),
			Position: i,
		}
		b.Date, _, _ = scalarDate(r.lookup(row, FieldDate))
		if n.anyAggregate(b.Teacher, b.Location) {
			st.SentinelRowsDropped++
			continue
		}
		out = append(out, b)
	}
	st.Kept = len(out)
	return out, st
}
