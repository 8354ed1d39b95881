package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики движка и фоновой очистки
var (
	// transitionsTotal: зафиксированные переходы по событию и итоговому статусу.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securedrop_lifecycle_transitions_total",
		Help: "Количество зафиксированных переходов артефактов",
	}, []string{"event", "status"})

	// casConflictsTotal: проигранные гонки условного обновления.
	casConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_lifecycle_cas_conflicts_total",
		Help: "Количество конфликтов версий при обновлении записи",
	})

	// blobPurgeFailuresTotal: неудачные удаления блоба (повторит sweeper).
	blobPurgeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_blob_purge_failures_total",
		Help: "Количество неудачных удалений зашифрованных блобов",
	})

	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_sweep_runs_total",
		Help: "Количество запусков фоновой очистки",
	})

	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_sweep_expired_total",
		Help: "Количество артефактов, переведённых очисткой в expired",
	})

	sweepPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_sweep_blobs_purged_total",
		Help: "Количество блобов, удалённых очисткой",
	})

	sweepTombstonesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "securedrop_sweep_tombstones_deleted_total",
		Help: "Количество удалённых надгробий",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "securedrop_sweep_duration_seconds",
		Help:    "Длительность фоновой очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)
