package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/noah-isme/backend-apotek/internal/obs"
)

var (
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)
	QueueTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_task_duration_ms",
			Help:    "Task handler latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(QueueProcessedTotal, QueueTaskDuration)
}

// Instrument records outcome and latency of every task handled by next.
func Instrument(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		status := "ok"
		if err != nil {
			status = "error"
		}
		QueueProcessedTotal.WithLabelValues(t.Type(), status).Inc()
		QueueTaskDuration.WithLabelValues(t.Type()).Observe(obs.DurationMillis(time.Since(start)))
		return err
	})
}
