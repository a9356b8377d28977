// Package sim drives the scheduler core with a deterministic multi-CPU
// workload: a virtual tick clock, one assignment per simulated CPU and a
// set of busy worker threads. Two scenarios are built in: "roundrobin"
// (equal-priority workers under the global slice) and "perthread" (workers
// with individual slice durations and expiry callbacks).
package sim

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"ticksched/internal/config"
	"ticksched/internal/logger"
	"ticksched/internal/maps"
	"ticksched/internal/sched"
)

// Worker is one busy thread in the simulation. It consumes one tick of
// work per tick it spends current on a CPU and finishes when its work
// budget is exhausted.
type Worker struct {
	Thread *sched.Thread

	remaining   int64
	done        bool
	expirations atomic.Int64
}

// Expirations returns how many times this worker's slice expired. Only
// the "perthread" scenario counts them, through its expiry callback.
func (w *Worker) Expirations() int64 { return w.expirations.Load() }

// Done reports whether the worker has finished its work budget.
func (w *Worker) Done() bool { return w.done }

// Simulator owns the core, the ready queue and the workers, and advances
// the whole system one virtual tick at a time. A single goroutine drives
// all simulated CPUs, which satisfies the core's requirement that each
// CPU's tracker is only touched from one tick path.
type Simulator struct {
	core     *sched.Core
	queue    *sched.RunQueue
	signaler *sched.ChanSignaler

	workers  []*Worker
	byThread maps.ConcurrentMap[uint32, *Worker]

	lastCurrent []*sched.Thread
	tickHz      int

	log log.Logger
}

// New builds a simulator from the scheduler and simulator configuration
// sections. The observer may be nil.
func New(schedCfg *config.SchedConfig, simCfg *config.SimConfig, obs sched.Observer) *Simulator {
	numCPU := schedCfg.CPUs
	queue := sched.NewRunQueue(numCPU)
	signaler := sched.NewChanSignaler(numCPU)
	core := sched.NewCore(numCPU, queue, signaler, obs)
	core.ConfigureGlobal(schedCfg.SliceTicks, schedCfg.CeilingPriority)

	s := &Simulator{
		core:        core,
		queue:       queue,
		signaler:    signaler,
		byThread:    maps.NewConcurrentMap[uint32, *Worker](),
		lastCurrent: make([]*sched.Thread, numCPU),
		tickHz:      simCfg.TickHz,
		log:         logger.NewLoggerWithContext("sim"),
	}

	for i := 0; i < simCfg.Threads; i++ {
		th := sched.NewThread(sched.ThreadID(i+1), workerName(i), simCfg.Priority)
		w := &Worker{Thread: th, remaining: simCfg.WorkTicks}
		s.workers = append(s.workers, w)
		s.byThread.Store(uint32(th.ID()), w)
		queue.Add(th)

		if simCfg.Scenario == "perthread" {
			ticks := simCfg.OverrideTicks[i%len(simCfg.OverrideTicks)]
			core.ConfigureThread(th, ticks, sched.ExpiryFunc(s.onSliceExpired), w)
			s.log.Info().
				Str("worker", th.Name()).
				Int64("slice_ticks", ticks).
				Msg("Configured per-thread time slice")
		}
	}

	return s
}

// Core returns the scheduler core, for runtime reconfiguration.
func (s *Simulator) Core() *sched.Core { return s.core }

// Workers returns the simulated workers.
func (s *Simulator) Workers() []*Worker { return s.workers }

// onSliceExpired is the per-thread expiry callback of the "perthread"
// scenario, mirroring what an application would install: it runs on the
// expiring CPU's tick path, so it only bumps a counter.
func (s *Simulator) onSliceExpired(t *sched.Thread, data any) {
	w := data.(*Worker)
	w.expirations.Add(1)
}

// Step advances every simulated CPU by one tick. It reports whether any
// worker is still runnable.
func (s *Simulator) Step() bool {
	active := false
	for cpu := range s.lastCurrent {
		cur := s.queue.PeekCurrent(cpu)
		if cur != s.lastCurrent[cpu] {
			// Context-switch boundary: the tracker re-binds and reloads
			// the slice for whoever is current now.
			s.core.Reset(cpu, cur)
			s.lastCurrent[cpu] = cur
		}
		if cur == nil {
			continue
		}
		active = true

		s.core.OnTick(cpu, 1)
		if w, ok := s.byThread.Load(uint32(cur.ID())); ok {
			w.remaining--
			if w.remaining <= 0 && !w.done {
				s.finish(w, cpu)
			}
		}
	}
	return active
}

// StepN advances the simulation by n ticks or until all work is done.
func (s *Simulator) StepN(n int64) {
	for i := int64(0); i < n; i++ {
		if !s.Step() {
			return
		}
	}
}

// finish retires a worker whose work budget ran out.
func (s *Simulator) finish(w *Worker, cpu int) {
	w.done = true
	s.queue.Remove(w.Thread)
	s.core.Reset(cpu, s.queue.PeekCurrent(cpu))
	s.lastCurrent[cpu] = s.queue.PeekCurrent(cpu)
	s.log.Info().
		Str("worker", w.Thread.Name()).
		Int64("run_ticks", w.Thread.RunTicks()).
		Int64("expirations", w.Expirations()).
		Msg("Worker completed")
}

// Run drives the simulation at the configured virtual tick rate until all
// workers finish or the context is canceled, then logs the final report.
func (s *Simulator) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.tickHz)
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().
		Int("cpus", len(s.lastCurrent)).
		Int("workers", len(s.workers)).
		Int("tick_hz", s.tickHz).
		Msg("Simulation started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !s.Step() {
				s.report()
				return nil
			}
		}
	}
}

// report logs the final per-worker run-tick and expiration accounting.
func (s *Simulator) report() {
	for _, w := range s.workers {
		s.log.Info().
			Str("worker", w.Thread.Name()).
			Int64("run_ticks", w.Thread.RunTicks()).
			Int64("expirations", w.Expirations()).
			Msg("Final worker accounting")
	}
	s.log.Info().Msg("Simulation completed")
}

func workerName(i int) string {
	return "worker-" + strconv.Itoa(i)
}
