package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

func outcome(teacher, location, visit string, revenue float64, visits int) model.ClientOutcome {
	o := model.ClientOutcome{
		Client:     model.ClientProfile{Teacher: teacher, FirstVisitLocation: location, FirstVisitDate: visit},
		Conversion: model.ConversionResult{Status: model.NotConverted},
		Retention:  model.RetentionResult{Status: model.NotRetained, VisitsPostTrial: visits},
	}
	if revenue > 0 {
		v := revenue
		o.Conversion.Status = model.Converted
		o.Conversion.FirstPurchaseValue = &v
	}
	if visits > 0 {
		o.Retention.Status = model.Retained
	}
	return o
}

func find(t *testing.T, ms []model.TeacherPeriodMetric, teacher, location, period string) model.TeacherPeriodMetric {
	t.Helper()
	got := Select(ms, teacher, location, period)
	require.Len(t, got, 1, "%s/%s/%s", teacher, location, period)
	return got[0]
}

func TestAggregateBucketsAndRates(t *testing.T) {
	res := Aggregate([]model.ClientOutcome{
		outcome("Mia", "Bandra", "2024-01-03", 1000, 2),
		outcome("Mia", "Bandra", "2024-01-20", 0, 0),
		outcome("Mia", "Bandra", "2024-01-25", 0, 1),
		outcome("Raj", "Kemps", "2024-02-01", 500, 0),
	}, Options{})

	mia := find(t, res.Metrics, "Mia", "Bandra", "2024-01")
	assert.False(t, mia.Rollup)
	assert.Equal(t, 3, mia.NewClients)
	assert.Equal(t, 2, mia.RetainedClients)
	assert.Equal(t, 1, mia.NotRetainedClients)
	assert.Equal(t, 1, mia.ConvertedClients)
	assert.Equal(t, 2, mia.NotConvertedClients)
	assert.InDelta(t, 66.67, mia.RetentionRate, 1e-9)
	assert.InDelta(t, 33.33, mia.ConversionRate, 1e-9)
	assert.InDelta(t, 1000.0, mia.TotalRevenue, 1e-9)
	assert.InDelta(t, 1000.0, mia.AvgRevenuePerConvertedClient, 1e-9)
	assert.Equal(t, 3, mia.PostTrialVisits)
	assert.InDelta(t, 1.0, mia.AvgVisitsPostTrial, 1e-9)

	assert.Equal(t, []string{"Mia", "Raj"}, res.Teachers)
	assert.Equal(t, []string{"Bandra", "Kemps"}, res.Locations)
	assert.Equal(t, []string{"2024-01", "2024-02"}, res.Periods)
}

func TestAggregateRollupsAreSums(t *testing.T) {
	res := Aggregate([]model.ClientOutcome{
		outcome("Mia", "Bandra", "2024-01-03", 100, 1),
		outcome("Raj", "Bandra", "2024-01-04", 0, 0),
		outcome("Mia", "Kemps", "2024-01-05", 50, 3),
	}, Options{})

	var baseNew, baseConv int
	var baseRev float64
	for _, m := range res.Metrics {
		if !m.Rollup && m.Period == "2024-01" {
			baseNew += m.NewClients
			baseConv += m.ConvertedClients
			baseRev += m.TotalRevenue
		}
	}
	total := find(t, res.Metrics, AllTeachers, AllLocations, "2024-01")
	assert.True(t, total.Rollup)
	assert.Equal(t, baseNew, total.NewClients)
	assert.Equal(t, baseConv, total.ConvertedClients)
	assert.InDelta(t, baseRev, total.TotalRevenue, 1e-9)
	assert.Equal(t, 4, total.PostTrialVisits)

	bandra := find(t, res.Metrics, AllTeachers, "Bandra", "2024-01")
	assert.Equal(t, 2, bandra.NewClients)
	assert.InDelta(t, 50.0, bandra.ConversionRate, 1e-9)

	mia := find(t, res.Metrics, "Mia", AllLocations, "2024-01")
	assert.Equal(t, 2, mia.NewClients)
	assert.InDelta(t, 75.0, mia.AvgRevenuePerConvertedClient, 1e-9)

	assert.NotContains(t, res.Teachers, AllTeachers)
	assert.NotContains(t, res.Locations, AllLocations)
}

func TestAggregateOrdering(t *testing.T) {
	res := Aggregate([]model.ClientOutcome{
		outcome("Zed", "B", "2024-02-01", 0, 0),
		outcome("Amy", "B", "2024-01-01", 0, 0),
		outcome("Amy", "A", "2024-01-01", 0, 0),
	}, Options{})
	var rows []string
	for _, m := range res.Metrics {
		rows = append(rows, m.Period+"|"+m.Location+"|"+m.Teacher)
	}
	assert.Equal(t, []string{
		"2024-01|A|Amy",
		"2024-01|B|Amy",
		"2024-01|A|All Teachers",
		"2024-01|B|All Teachers",
		"2024-01|All Locations|Amy",
		"2024-01|All Locations|All Teachers",
		"2024-02|B|Zed",
		"2024-02|B|All Teachers",
		"2024-02|All Locations|Zed",
		"2024-02|All Locations|All Teachers",
	}, rows)
}

func TestAggregateMissingDimensions(t *testing.T) {
	ex := outcome("Mia", "Bandra", "2024-01-01", 0, 0)
	ex.Excluded = true
	res := Aggregate([]model.ClientOutcome{
		outcome("", " ", "not a date", 0, 0),
		ex,
	}, Options{PeriodLayout: "2006"})
	m := find(t, res.Metrics, Unassigned, Unassigned, UnknownPeriod)
	assert.Equal(t, 1, m.NewClients)
	assert.Equal(t, []string{Unassigned}, res.Teachers)
	assert.Equal(t, []string{UnknownPeriod}, res.Periods)

	yearly := Aggregate([]model.ClientOutcome{outcome("Mia", "B", "2024-03-01", 0, 0)}, Options{PeriodLayout: "2006"})
	assert.Equal(t, []string{"2024"}, yearly.Periods)
}

func TestZeroClientBucketRatesAreZero(t *testing.T) {
	m := finalize(bucketKey{teacher: "Mia", location: "B", period: "2024-01"}, counts{}, false)
	for _, v := range []float64{m.RetentionRate, m.ConversionRate, m.AvgRevenuePerConvertedClient, m.AvgVisitsPostTrial} {
		assert.Zero(t, v)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}

	empty := Aggregate(nil, Options{})
	assert.Empty(t, empty.Metrics)
	assert.NotNil(t, empty.Metrics)
}
