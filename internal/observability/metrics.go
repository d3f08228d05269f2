package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransferBytes tracks bytes transferred during a stack migration's
	// P10 transfer phase.
	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmigrate_transfer_bytes_total",
			Help: "Total bytes transferred during migrations",
		},
		[]string{"method", "source_host", "target_host"},
	)

	// TransferDuration tracks P10 transfer duration by method (rsync/zfs).
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetmigrate_transfer_duration_seconds",
			Help:    "Duration of P10 data transfers",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1s to ~27 minutes
		},
		[]string{"method", "status"},
	)

	// ActiveMigrations tracks currently running migrations
	ActiveMigrations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetmigrate_active_migrations",
			Help: "Number of currently active migrations",
		},
	)

	// MigrationStatus tracks terminal migration outcomes
	MigrationStatus = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmigrate_migrations_total",
			Help: "Total number of migrations by terminal status",
		},
		[]string{"status", "strategy"},
	)

	// PhaseDuration tracks each P1-P16 phase's wall-clock time.
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetmigrate_phase_duration_seconds",
			Help:    "Duration of individual migration phases",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		},
		[]string{"phase", "status"},
	)

	// VolumeSize tracks the byte size of bind-mount volumes inventoried
	// during a migration's P14 source census.
	VolumeSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetmigrate_volume_size_bytes",
			Help:    "Size of volumes being migrated",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 20), // 1MiB to 512GiB
		},
		[]string{"stack"},
	)

	// ChecksumVerifications tracks P14 reconciliation results.
	ChecksumVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmigrate_checksum_verifications_total",
			Help: "Total number of post-transfer checksum verifications",
		},
		[]string{"result"},
	)

	// RetryAttempts tracks SSH session retry attempts for failed operations
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmigrate_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"operation", "outcome"},
	)

	// PortConflictsResolved tracks P11's auto-remap count.
	PortConflictsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetmigrate_port_conflicts_resolved_total",
			Help: "Total number of host-port collisions auto-remapped during P11",
		},
		[]string{"stack"},
	)
)

// Metrics provides access to all application metrics
type Metrics struct{}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordTransfer records a P10 transfer operation
func (m *Metrics) RecordTransfer(method, sourceHost, targetHost string, bytes float64) {
	TransferBytes.WithLabelValues(method, sourceHost, targetHost).Add(bytes)
}

// RecordMigration records a migration's terminal outcome
func (m *Metrics) RecordMigration(status, strategy string) {
	MigrationStatus.WithLabelValues(status, strategy).Inc()
}

// RecordPhase records one phase's duration and outcome.
func (m *Metrics) RecordPhase(phase, status string, seconds float64) {
	PhaseDuration.WithLabelValues(phase, status).Observe(seconds)
}

// MigrationStarted and MigrationFinished track the in-flight gauge.
func (m *Metrics) MigrationStarted()  { ActiveMigrations.Inc() }
func (m *Metrics) MigrationFinished() { ActiveMigrations.Dec() }

// RecordChecksumVerification records one critical-file checksum outcome
// ("verified" or "mismatch").
func (m *Metrics) RecordChecksumVerification(result string) {
	ChecksumVerifications.WithLabelValues(result).Inc()
}

// RecordPortConflicts adds the host-port collisions remapped for a stack.
func (m *Metrics) RecordPortConflicts(stack string, count int) {
	PortConflictsResolved.WithLabelValues(stack).Add(float64(count))
}

// ObserveVolumeSize records the total byte size censused for a stack's
// bind mounts.
func (m *Metrics) ObserveVolumeSize(stack string, bytes float64) {
	VolumeSize.WithLabelValues(stack).Observe(bytes)
}

// RecordRetry counts one retry attempt for an operation and its outcome.
func RecordRetry(operation, outcome string) {
	RetryAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveTransferDuration records a transfer's wall-clock time by method.
func (m *Metrics) ObserveTransferDuration(method, status string, seconds float64) {
	TransferDuration.WithLabelValues(method, status).Observe(seconds)
}
