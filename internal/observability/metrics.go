package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the publication dedup service.
// Metrics are organized by subsystem: grouping, merging, and the
// non-duplicate registry. All counters and histograms are registered via
// promauto for automatic registration with the default Prometheus registry.
//
// A nil *Metrics is valid; the Record* methods become no-ops. This keeps
// metrics optional for one-shot tools and tests.
type Metrics struct {
	// GroupingRuns counts full grouping scans, labeled by outcome.
	GroupingRuns *prometheus.CounterVec

	// GroupingDuration observes the end-to-end duration of grouping scans in seconds.
	GroupingDuration prometheus.Histogram

	// PublicationsScanned counts publications examined across grouping scans.
	PublicationsScanned prometheus.Counter

	// GroupsCreated counts duplicate groups created by grouping scans.
	GroupsCreated prometheus.Counter

	// GroupsPruned counts duplicate groups deleted for having fewer than two members.
	GroupsPruned prometheus.Counter

	// GroupingClassFailures counts similarity classes whose persistence failed.
	GroupingClassFailures prometheus.Counter

	// MergesCompleted counts merges that committed successfully.
	MergesCompleted prometheus.Counter

	// MergesBlocked counts merges refused because of a non-duplicate group.
	MergesBlocked prometheus.Counter

	// MergesFailed counts merges rolled back by an error.
	MergesFailed prometheus.Counter

	// MergeDuration observes merge transaction duration in seconds.
	MergeDuration prometheus.Histogram

	// MergeSourceCount observes how many publications each merge folded away.
	MergeSourceCount prometheus.Histogram

	// NonDuplicateGroupsCreated counts non-duplicate confirmations recorded.
	NonDuplicateGroupsCreated prometheus.Counter

	// NonDuplicateGroupsDeleted counts non-duplicate confirmations removed.
	NonDuplicateGroupsDeleted prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Grouping
		GroupingRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grouping_runs_total",
			Help:      "Total number of duplicate grouping scans by outcome",
		}, []string{"outcome"}),
		GroupingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grouping_duration_seconds",
			Help:      "Duration of duplicate grouping scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		PublicationsScanned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_scanned_total",
			Help:      "Total number of publications examined by grouping scans",
		}),
		GroupsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_groups_created_total",
			Help:      "Total number of duplicate groups created",
		}),
		GroupsPruned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_groups_pruned_total",
			Help:      "Total number of duplicate groups deleted for having fewer than two members",
		}),
		GroupingClassFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grouping_class_failures_total",
			Help:      "Total number of similarity classes that failed to persist",
		}),

		// Merging
		MergesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_completed_total",
			Help:      "Total number of publication merges committed",
		}),
		MergesBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_blocked_total",
			Help:      "Total number of merges refused by a non-duplicate confirmation",
		}),
		MergesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_failed_total",
			Help:      "Total number of merges rolled back by an error",
		}),
		MergeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_duration_seconds",
			Help:      "Duration of merge transactions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		MergeSourceCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "merge_source_count",
			Help:      "Number of publications folded away per merge",
			Buckets:   []float64{1, 2, 3, 5, 10, 25},
		}),

		// Non-duplicate registry
		NonDuplicateGroupsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "non_duplicate_groups_created_total",
			Help:      "Total number of non-duplicate groups recorded",
		}),
		NonDuplicateGroupsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "non_duplicate_groups_deleted_total",
			Help:      "Total number of non-duplicate groups deleted",
		}),
	}
}

// RecordGroupingRun records a completed grouping scan.
func (m *Metrics) RecordGroupingRun(outcome string, scanned int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.GroupingRuns.WithLabelValues(outcome).Inc()
	m.GroupingDuration.Observe(durationSeconds)
	m.PublicationsScanned.Add(float64(scanned))
}

// RecordGroupCreated records a newly created duplicate group.
func (m *Metrics) RecordGroupCreated() {
	if m == nil {
		return
	}
	m.GroupsCreated.Inc()
}

// RecordGroupsPruned records duplicate groups deleted as too small.
func (m *Metrics) RecordGroupsPruned(count int64) {
	if m == nil {
		return
	}
	m.GroupsPruned.Add(float64(count))
}

// RecordGroupingClassFailure records a similarity class that failed to persist.
func (m *Metrics) RecordGroupingClassFailure() {
	if m == nil {
		return
	}
	m.GroupingClassFailures.Inc()
}

// RecordMergeCompleted records a committed merge.
func (m *Metrics) RecordMergeCompleted(sourceCount int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.MergesCompleted.Inc()
	m.MergeDuration.Observe(durationSeconds)
	m.MergeSourceCount.Observe(float64(sourceCount))
}

// RecordMergeBlocked records a merge refused by a non-duplicate confirmation.
func (m *Metrics) RecordMergeBlocked() {
	if m == nil {
		return
	}
	m.MergesBlocked.Inc()
}

// RecordMergeFailed records a merge rolled back by an error.
func (m *Metrics) RecordMergeFailed() {
	if m == nil {
		return
	}
	m.MergesFailed.Inc()
}

// RecordNonDuplicateGroupCreated records a non-duplicate confirmation.
func (m *Metrics) RecordNonDuplicateGroupCreated() {
	if m == nil {
		return
	}
	m.NonDuplicateGroupsCreated.Inc()
}

// RecordNonDuplicateGroupDeleted records a removed non-duplicate confirmation.
func (m *Metrics) RecordNonDuplicateGroupDeleted() {
	if m == nil {
		return
	}
	m.NonDuplicateGroupsDeleted.Inc()
}
