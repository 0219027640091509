package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(pagesProcessed.WithLabelValues("success"))
	IncProcessed("success")
	IncProcessed("success")
	assert.Equal(t, before+2, testutil.ToFloat64(pagesProcessed.WithLabelValues("success")))

	codes := testutil.ToFloat64(codesDecoded)
	AddCodes(3)
	assert.Equal(t, codes+3, testutil.ToFloat64(codesDecoded))

	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	IncCache("hit")
	assert.Equal(t, hits+1, testutil.ToFloat64(cacheLookups.WithLabelValues("hit")))
}

func TestWriteTextfile(t *testing.T) {
	Init()
	IncRun("success")
	ObserveStage("decode", 15*time.Millisecond)

	p := filepath.Join(t.TempDir(), "dmscan.prom")
	require.NoError(t, WriteTextfile(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dmscan_runs_total{result="success"}`)
	assert.Contains(t, string(data), "dmscan_page_duration_seconds_bucket")
}
