package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

func TestClientsResolvesSynonyms(t *testing.T) {
	n := New(DefaultOptions())
	rows := []model.RawRow{
		{"Member ID": 101, "First Name": "Ana", "Last Name": "Ruiz", "Email": "  Ana@X.com ", "First Visit": "2024-01-01", "First Visit Location": "Kwality House", "First Visit Type": "Trial Class", "First Visit Teacher": "Mia"},
		{"memberID": "102", "firstName": "Bo", "email": "bo@x.com", "firstVisitDate": "02/01/2024", "location": "Bandra", "teacher": "Raj"},
		{"id": json.Number("103"), "E-mail": "cy@x.com"},
	}
	clients, st := n.Clients(rows)
	require.Len(t, clients, 3)
	assert.Equal(t, Stats{Rows: 3, Kept: 3}, st)

	assert.Equal(t, model.ClientProfile{
		MemberID: "101", FirstName: "Ana", LastName: "Ruiz", Email: "ana@x.com",
		FirstVisitDate: "2024-01-01", FirstVisitLocation: "Kwality House",
		MembershipUsed: "Trial Class", Teacher: "Mia", Position: 0,
	}, clients[0])
	assert.Equal(t, "102", clients[1].MemberID)
	assert.Equal(t, "Bandra", clients[1].FirstVisitLocation)
	assert.Equal(t, "Raj", clients[1].Teacher)
	assert.Equal(t, "103", clients[2].MemberID)
	assert.Equal(t, "cy@x.com", clients[2].Email)
	assert.Empty(t, clients[2].FirstVisitDate)
	assert.Equal(t, 2, clients[2].Position)
}

func TestClientsDropsAggregateRows(t *testing.T) {
	n := New(DefaultOptions())
	rows := []model.RawRow{
		{"Email": "a@x.com", "Teacher": "All Trainers"},
		{"Email": "b@x.com", "Teacher": "Mia", "Location": "all locations"},
		{"Email": "c@x.com", "Teacher": "Mia"},
	}
	clients, st := n.Clients(rows)
	require.Len(t, clients, 1)
	assert.Equal(t, "c@x.com", clients[0].Email)
	assert.Equal(t, 2, st.SentinelRowsDropped)
	assert.Equal(t, 1, st.Kept)
}

func TestPurchasesCoercesValues(t *testing.T) {
	n := New(DefaultOptions())
	rows := []model.RawRow{
		{"Customer Email": "E@x.com", "Payment Date": "2024-01-05", "Payment Value": "$1,000.00", "Cleaned Category": "Class", "Cleaned Product": "10 Pack", "Refunded": "No"},
		{"Email": "f@x.com", "Date": "05/01/2024 10:30", "Amount": -50.0, "Category": "retail", "Refund Status": "Refunded"},
		{"Email": "g@x.com", "Value": "1.250,50", "Category": "All Trainers"},
		{"Email": "h@x.com", "Value": "(75)", "Date": "not a date"},
	}
	ps, st := n.Purchases(rows)
	require.Len(t, ps, 3)
	assert.Equal(t, 1, st.SentinelRowsDropped)

	assert.Equal(t, "e@x.com", ps[0].Email)
	assert.InDelta(t, 1000.0, ps[0].Value, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), ps[0].Date)
	assert.False(t, ps[0].Refunded)

	assert.InDelta(t, -50.0, ps[1].Value, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), ps[1].Date)
	assert.True(t, ps[1].Refunded)

	assert.InDelta(t, -75.0, ps[2].Value, 1e-9)
	assert.True(t, ps[2].Date.IsZero())
	assert.Equal(t, "not a date", ps[2].RawDate)
	assert.Equal(t, 3, ps[2].Position)
}

func TestBookingsNormalize(t *testing.T) {
	n := New(DefaultOptions())
	bs, st := n.Bookings([]model.RawRow{
		{"Email": "A@x.com", "Class Date": "2024-01-03", "Teacher": "Mia", "Location": "Bandra"},
		{"Email": "b@x.com", "Class Date": "2024-01-03", "Teacher": "All Teachers"},
	})
	require.Len(t, bs, 1)
	assert.Equal(t, 1, st.SentinelRowsDropped)
	assert.Equal(t, "a@x.com", bs[0].Email)
	assert.Equal(t, "Bandra", bs[0].Location)
}

func TestExtraSynonymsAreMerged(t *testing.T) {
	opt := DefaultOptions()
	opt.Synonyms = opt.Synonyms.Merge(Synonyms{SourceClients: {FieldEmail: {"Mail"}}})
	n := New(opt)
	clients, _ := n.Clients([]model.RawRow{{"Mail": "z@x.com"}})
	require.Len(t, clients, 1)
	assert.Equal(t, "z@x.com", clients[0].Email)
	// defaults are untouched
	assert.NotContains(t, DefaultSynonyms()[SourceClients][FieldEmail], "Mail")
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1000", 1000, true},
		{"$1,000", 1000, true},
		{"₹ 2,500.75", 2500.75, true},
		{"12,5", 12.5, true},
		{"1.250,50", 1250.5, true},
		{"-50", -50, true},
		{"(50.00)", -50, true},
		{"", 0, false},
		{"n/a", 0, false},
	}
	for _, c := range cases {
		got, ok := parseAmount(c.in, NumberFormat{})
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-9, c.in)
		}
	}
}

func TestParseDateDayFirst(t *testing.T) {
	d, ok := ParseDate("02/01/2024")
	require.True(t, ok)
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 2, d.Day())

	d, ok = ParseDate("01/13/2024")
	require.True(t, ok)
	assert.Equal(t, 13, d.Day())

	// Ambiguous numeric dates always read day-first.
	d, ok = ParseDate("01/05/2024")
	require.True(t, ok)
	assert.Equal(t, time.May, d.Month())
	assert.Equal(t, 1, d.Day())

	_, ok = ParseDate("yesterday")
	assert.False(t, ok)
}
