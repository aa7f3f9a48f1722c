package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohits-web03/meshforge/internal/config"
)

func TestRecordBlobUpload(t *testing.T) {
	before := testutil.ToFloat64(blobUploadsTotal.WithLabelValues("usdz", "failure"))
	bytesBefore := testutil.ToFloat64(blobBytesTotal.WithLabelValues("usdz"))

	RecordBlobUpload("usdz", "failure", 512)
	RecordBlobUpload("usdz", "success", 1024)

	assert.Equal(t, before+1, testutil.ToFloat64(blobUploadsTotal.WithLabelValues("usdz", "failure")))
	assert.Equal(t, bytesBefore+1024, testutil.ToFloat64(blobBytesTotal.WithLabelValues("usdz")))
}

func TestRecordGeneration(t *testing.T) {
	before := testutil.ToFloat64(generationsTotal.WithLabelValues("completed"))
	RecordGeneration("completed", 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(generationsTotal.WithLabelValues("completed")))
}

func TestNewLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{
		{Level: "debug", Format: "console"},
		{Level: "error", Format: "json"},
		{Level: "nonsense", Format: ""},
	} {
		logger := NewLogger(cfg)
		require.NotNil(t, logger)
	}
}
