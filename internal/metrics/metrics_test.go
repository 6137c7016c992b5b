package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("QUOTATION", "APPROVED"))
	RecordTransition("QUOTATION", "APPROVED")
	RecordTransition("QUOTATION", "APPROVED")
	assert.Equal(t, before+2, testutil.ToFloat64(transitionsTotal.WithLabelValues("QUOTATION", "APPROVED")))
}

func TestObserveOperation(t *testing.T) {
	ObserveOperation("approve", "ok", time.Now().Add(-10*time.Millisecond))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(operationDuration, "approval_operation_duration_seconds"), 1)
}
