package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCounters(t *testing.T) {
	r := New()
	r.FilesParsed.Add(3)
	r.FilesFailed.Inc()
	r.GenesLoaded.Add(42)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.FilesParsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FilesFailed))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.GenesLoaded))

	// separate runs do not share values
	assert.Equal(t, 0.0, testutil.ToFloat64(New().FilesParsed))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.BatchesLoaded.Add(2)
	r.BatchSeconds.Observe(0.5)

	path := filepath.Join(t.TempDir(), "run.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "clusterdb_batches_loaded_total 2")
	assert.Contains(t, string(data), "clusterdb_batch_duration_seconds_count 1")
}
