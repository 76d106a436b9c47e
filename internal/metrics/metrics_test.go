package metrics

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/pipeline"
)

func sample() *pipeline.Output {
	return &pipeline.Output{
		NewClientRecords: make([]model.ClientOutcome, 4),
		ProcessedData: []model.TeacherPeriodMetric{
			{Teacher: "Mia", Location: "Bandra", Period: "2024-01", ConversionRate: 50},
			{Teacher: "All Teachers", Location: "All Locations", Period: "2024-01", ConversionRate: 25, RetentionRate: 75, Rollup: true},
		},
		Stats: pipeline.Stats{
			Included: 3, Excluded: 1, Converted: 1, Retained: 2, Revenue: 1000,
			StageDurations: map[string]time.Duration{"classify": 3 * time.Millisecond},
		},
	}
}

func TestObserve(t *testing.T) {
	e := New()
	e.Observe(sample())
	assert.Equal(t, 4.0, testutil.ToFloat64(e.clients.WithLabelValues("total")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.clients.WithLabelValues("excluded")))
	assert.Equal(t, 1000.0, testutil.ToFloat64(e.revenue))
	assert.Equal(t, 25.0, testutil.ToFloat64(e.conv.WithLabelValues("All Teachers", "All Locations", "2024-01")))
	// base rows are not exported
	assert.Equal(t, 1, testutil.CollectAndCount(e.conv))
	assert.Equal(t, 1, testutil.CollectAndCount(e.stages))
}

func TestWriteTextfileAndHandler(t *testing.T) {
	e := New()
	e.Observe(sample())
	p := filepath.Join(t.TempDir(), "trialfunnel.prom")
	require.NoError(t, e.WriteTextfile(p))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(b), "trialfunnel_conversion_rate")
	assert.Contains(t, string(b), `state="converted"`)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "trialfunnel_retention_rate")
}
