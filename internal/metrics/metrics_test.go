package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{opfs.WrapPath("read", "root", "a", opfs.ErrNotFound), "not_found"},
		{fmt.Errorf("x: %w", opfs.ErrTypeMismatch), "type_mismatch"},
		{opfs.ErrPermission, "permission"},
		{opfs.ErrAlreadyExists, "already_exists"},
		{opfs.ErrQuotaExceeded, "quota_exceeded"},
		{opfs.ErrInvalidName, "invalid_name"},
		{opfs.ErrNotEmpty, "not_empty"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), "%v", tt.err)
	}
}

func TestRecordOperation(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(operationsTotal.WithLabelValues("metrics_test", "not_found"))
	RecordOperation("metrics_test", opfs.ErrNotFound, time.Millisecond)
	after := testutil.ToFloat64(operationsTotal.WithLabelValues("metrics_test", "not_found"))

	assert.Equal(t, before+1, after)
}

func TestSetTreeNodes(t *testing.T) {
	t.Parallel()

	SetTreeNodes("metrics_test", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(treeNodes.WithLabelValues("metrics_test")))
	DeleteTreeNodes("metrics_test")
}
