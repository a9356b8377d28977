package schedstats

import (
	"strconv"
	"sync/atomic"

	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"ticksched/internal/logger"
	"ticksched/internal/maps"
	"ticksched/internal/sched"
)

// SliceCollector implements prometheus.Collector for time-slice metrics
// and sched.Observer for the core's tick path. The hot path only touches
// pre-allocated per-CPU atomics plus one concurrent-map lookup for the
// per-thread counter; metrics are materialized at scrape time.
type SliceCollector struct {
	// Per-CPU counters, indexed by CPU number.
	expirations   []*atomic.Int64
	rotations     []*atomic.Int64
	callbacks     []*atomic.Int64
	reevaluations []*atomic.Int64

	// Per-thread expiration counts, keyed by thread id.
	threadExpirations maps.ConcurrentMap[uint32, *atomic.Int64]

	log log.Logger

	// Metric Descriptors
	expirationsDesc       *prometheus.Desc
	rotationsDesc         *prometheus.Desc
	callbacksDesc         *prometheus.Desc
	reevaluationsDesc     *prometheus.Desc
	threadExpirationsDesc *prometheus.Desc
}

// NewSliceCollector creates a slice metrics collector for numCPU CPUs.
func NewSliceCollector(numCPU int) *SliceCollector {
	newCounters := func() []*atomic.Int64 {
		cs := make([]*atomic.Int64, numCPU)
		for i := range cs {
			cs[i] = new(atomic.Int64)
		}
		return cs
	}

	return &SliceCollector{
		expirations:       newCounters(),
		rotations:         newCounters(),
		callbacks:         newCounters(),
		reevaluations:     newCounters(),
		threadExpirations: maps.NewConcurrentMap[uint32, *atomic.Int64](),
		log:               logger.NewLoggerWithContext("schedstats"),

		expirationsDesc: prometheus.NewDesc(
			"ticksched_slice_expirations_cpu_total",
			"Total number of time-slice expiration passes per CPU.",
			[]string{"cpu"}, nil,
		),
		rotationsDesc: prometheus.NewDesc(
			"ticksched_slice_rotations_cpu_total",
			"Total number of ready-queue rotations per CPU.",
			[]string{"cpu"}, nil,
		),
		callbacksDesc: prometheus.NewDesc(
			"ticksched_slice_expiry_callbacks_cpu_total",
			"Total number of per-thread expiry callbacks invoked per CPU.",
			[]string{"cpu"}, nil,
		),
		reevaluationsDesc: prometheus.NewDesc(
			"ticksched_slice_remote_reevaluations_cpu_total",
			"Total number of cross-CPU re-evaluation requests consumed per CPU.",
			[]string{"cpu"}, nil,
		),
		threadExpirationsDesc: prometheus.NewDesc(
			"ticksched_slice_expirations_thread_total",
			"Total number of time-slice expirations per thread.",
			[]string{"thread"}, nil,
		),
	}
}

// RecordExpiration implements sched.Observer.
func (c *SliceCollector) RecordExpiration(cpu int, id sched.ThreadID) {
	if cpu >= 0 && cpu < len(c.expirations) {
		c.expirations[cpu].Add(1)
	}
	counter, _ := c.threadExpirations.LoadOrStore(uint32(id), func() *atomic.Int64 {
		return new(atomic.Int64)
	})
	counter.Add(1)
}

// RecordRotation implements sched.Observer.
func (c *SliceCollector) RecordRotation(cpu int, _ sched.ThreadID) {
	if cpu >= 0 && cpu < len(c.rotations) {
		c.rotations[cpu].Add(1)
	}
}

// RecordCallback implements sched.Observer.
func (c *SliceCollector) RecordCallback(cpu int, _ sched.ThreadID) {
	if cpu >= 0 && cpu < len(c.callbacks) {
		c.callbacks[cpu].Add(1)
	}
}

// RecordReevaluation implements sched.Observer.
func (c *SliceCollector) RecordReevaluation(cpu int) {
	if cpu >= 0 && cpu < len(c.reevaluations) {
		c.reevaluations[cpu].Add(1)
	}
}

// ForgetThread drops the per-thread series for a destroyed thread so the
// scrape output does not accumulate dead labels.
func (c *SliceCollector) ForgetThread(id sched.ThreadID) {
	c.threadExpirations.Delete(uint32(id))
}

// Describe implements prometheus.Collector.
func (c *SliceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.expirationsDesc
	ch <- c.rotationsDesc
	ch <- c.callbacksDesc
	ch <- c.reevaluationsDesc
	ch <- c.threadExpirationsDesc
}

// Collect implements prometheus.Collector. Metrics are created fresh on
// each scrape so stale values are never exposed.
func (c *SliceCollector) Collect(ch chan<- prometheus.Metric) {
	perCPU := func(desc *prometheus.Desc, counters []*atomic.Int64) {
		for cpu, counter := range counters {
			if count := counter.Load(); count > 0 {
				ch <- prometheus.MustNewConstMetric(
					desc,
					prometheus.CounterValue,
					float64(count),
					strconv.Itoa(cpu),
				)
			}
		}
	}
	perCPU(c.expirationsDesc, c.expirations)
	perCPU(c.rotationsDesc, c.rotations)
	perCPU(c.callbacksDesc, c.callbacks)
	perCPU(c.reevaluationsDesc, c.reevaluations)

	c.threadExpirations.Range(func(id uint32, counter *atomic.Int64) bool {
		if count := counter.Load(); count > 0 {
			ch <- prometheus.MustNewConstMetric(
				c.threadExpirationsDesc,
				prometheus.CounterValue,
				float64(count),
				strconv.FormatUint(uint64(id), 10),
			)
		}
		return true
	})

	c.log.Debug().Msg("Collected slice metrics")
}
