// Package metrics provides Prometheus metrics for the explorer core.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	opfs "github.com/sashapodgoreanu/opfs-poc"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opfs_operations_total",
			Help: "Total number of filesystem operations by outcome",
		},
		[]string{"op", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opfs_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	treeNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "opfs_tree_nodes",
			Help: "Number of nodes in the last tree built for a root",
		},
		[]string{"root"},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opfs_bytes_written_total",
			Help: "Total bytes committed by file writes",
		},
	)

	bucketsReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opfs_buckets_reclaimed_total",
			Help: "Total number of expired buckets deleted by the sweeper",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an operation error to a low cardinality label value
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, opfs.ErrNotFound):
		return "not_found"
	case errors.Is(err, opfs.ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, opfs.ErrPermission):
		return "permission"
	case errors.Is(err, opfs.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, opfs.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, opfs.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, opfs.ErrNotEmpty):
		return "not_empty"
	default:
		return "error"
	}
}

// RecordOperation records the outcome and duration of an operation.
func RecordOperation(op string, err error, duration time.Duration) {
	operationsTotal.WithLabelValues(op, Status(err)).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// SetTreeNodes sets the node count of a root's last built tree.
func SetTreeNodes(root string, n int) {
	treeNodes.WithLabelValues(root).Set(float64(n))
}

// DeleteTreeNodes drops the gauge of a deleted root.
func DeleteTreeNodes(root string) {
	treeNodes.DeleteLabelValues(root)
}

// RecordBytesWritten records committed write bytes.
func RecordBytesWritten(n int) {
	bytesWritten.Add(float64(n))
}

// RecordBucketsReclaimed records buckets removed by an expiry sweep.
func RecordBucketsReclaimed(n int) {
	bucketsReclaimed.Add(float64(n))
}
