// Package scheduler implements the filter-score-assign pipeline with its
// active/unschedulable/backoff queue discipline (spec §4.3).
package scheduler

import (
	"math"
	"sort"

	"github.com/cuemby/orbitsim/pkg/config"
	"github.com/cuemby/orbitsim/pkg/kernel"
	"github.com/cuemby/orbitsim/pkg/log"
	"github.com/cuemby/orbitsim/pkg/metrics"
	"github.com/cuemby/orbitsim/pkg/simevents"
	"github.com/cuemby/orbitsim/pkg/types"
	"github.com/rs/zerolog"
)

// WorkingNodes is the read-only view the scheduler needs of the cluster
// state the API server owns.
type WorkingNodes interface {
	WorkingNodeList() []*types.Node
}

// Scheduler owns the active priority queue, the unschedulable list, and
// drives backoff/flush/move cycles through the kernel.
type Scheduler struct {
	addr kernel.Addr
	cfg  config.Config
	algo Algorithm
	log  zerolog.Logger

	nodes WorkingNodes

	active        []*types.Pod // max-heap by PriorityWeight
	unschedulable []*types.Pod

	schedulingCycle uint64
	movingCycle     uint64
}

// New constructs a Scheduler bound to addr, using algo as its
// filter/score strategy and nodes as its view of working nodes.
func New(addr kernel.Addr, cfg config.Config, algo Algorithm, nodes WorkingNodes) *Scheduler {
	return &Scheduler{
		addr:  addr,
		cfg:   cfg,
		algo:  algo,
		log:   log.WithComponent("scheduler"),
		nodes: nodes,
	}
}

// HandleEvent implements kernel.Handler.
func (s *Scheduler) HandleEvent(k *kernel.Kernel, ev kernel.Event) {
	switch data := ev.Data.(type) {
	case simevents.PodAssigningRequest:
		s.enqueueActive(data.Pod)
		s.maybeKickCycle(k)
	case simevents.SchedulingCycle:
		s.runCycle(k)
	case simevents.PodAssigningFailed:
		s.onAssigningFailed(k, data)
	case simevents.PodBackoffRetry:
		s.enqueueActive(data.Pod)
		s.maybeKickCycle(k)
	case simevents.UnschedulableFlush:
		s.flush(k)
		k.Emit(s.addr, s.addr, simevents.UnschedulableFlush{}, s.cfg.UnschedulableFlushTimeout)
	case simevents.MoveRequest:
		s.onMove(k)
	}
}

// maybeKickCycle starts a cycle if the scheduler isn't already mid-loop.
// In this design a cycle is always self-sustaining once started (it
// re-emits itself after every pop, including failures against a
// non-empty node set), so this only needs to fire the very first cycle.
func (s *Scheduler) maybeKickCycle(k *kernel.Kernel) {
	if len(s.active) == 1 {
		k.Emit(s.addr, s.addr, simevents.SchedulingCycle{}, 0)
	}
}

func (s *Scheduler) enqueueActive(p *types.Pod) {
	s.active = append(s.active, p)
	sort.SliceStable(s.active, func(i, j int) bool {
		return s.active[i].PriorityWeight > s.active[j].PriorityWeight
	})
}

func (s *Scheduler) popActive() *types.Pod {
	if len(s.active) == 0 {
		return nil
	}
	p := s.active[0]
	s.active = s.active[1:]
	return p
}

func (s *Scheduler) wouldPressure(n *types.Node, p *types.Pod) bool {
	return (n.MemoryAllocated + p.RequestedMemory) >= s.cfg.MemoryPressureThreshold*n.MemoryTotal
}

func (s *Scheduler) runCycle(k *kernel.Kernel) {
	pod := s.popActive()
	if pod == nil {
		return
	}
	s.schedulingCycle++
	metrics.SchedulingCyclesTotal.Inc()

	timer := metrics.NewTimer()
	workingNodes := s.nodes.WorkingNodeList()
	candidates := s.algo.Filter(pod, workingNodes, s.wouldPressure)

	var chosen *types.Node
	if len(candidates) > 0 {
		scores := s.algo.Score(pod, candidates)
		best := 0
		for i := 1; i < len(scores); i++ {
			if scores[i] > scores[best] {
				best = i
			}
		}
		chosen = candidates[best]
	}
	algoDelay := timer.Duration().Seconds()
	timer.ObserveDuration(metrics.SchedulingCycleDuration)

	if chosen == nil {
		metrics.SchedulingFailuresTotal.Inc()
		if len(workingNodes) > 0 {
			k.Emit(s.addr, s.addr, simevents.SchedulingCycle{}, algoDelay+s.cfg.ControlPlaneMessageDelay)
		}
		k.Emit(s.addr, s.addr, simevents.PodAssigningFailed{Pod: pod, Cycle: s.schedulingCycle}, s.cfg.ControlPlaneMessageDelay)
		return
	}

	pod.Reset()
	k.Emit(s.addr, simevents.AddrAPIServer, simevents.PodAssigningSucceeded{Pod: pod, NodeID: chosen.ID}, s.cfg.ControlPlaneMessageDelay)
	k.Emit(s.addr, s.addr, simevents.SchedulingCycle{}, algoDelay+s.cfg.ControlPlaneMessageDelay)
}

func (s *Scheduler) onAssigningFailed(k *kernel.Kernel, f simevents.PodAssigningFailed) {
	pod := f.Pod
	pod.SchedulingAttempts++
	if s.movingCycle < f.Cycle {
		pod.SchedulingTimestamp = k.CurrentTime()
		pod.Phase = types.PodUnschedulable
		s.unschedulable = append(s.unschedulable, pod)
		return
	}
	pod.Phase = types.PodBackoff
	delay := backoffDuration(pod.SchedulingAttempts, s.cfg.PodInitialBackoffDuration, s.cfg.PodMaxBackoffDuration)
	k.Emit(s.addr, s.addr, simevents.PodBackoffRetry{Pod: pod}, delay)
}

// backoffDuration implements spec §4.3's schedule: initial*2^(attempts-1)
// clamped at maxBackoff.
func backoffDuration(attempts uint64, initial, max float64) float64 {
	if attempts == 0 {
		return initial
	}
	d := initial * math.Pow(2, float64(attempts-1))
	if d > max {
		return max
	}
	return d
}

func (s *Scheduler) flush(k *kernel.Kernel) {
	now := k.CurrentTime()
	var stay []*types.Pod
	for _, p := range s.unschedulable {
		if now-p.SchedulingTimestamp >= s.cfg.PodMinUnschedulableTimeout {
			s.routeBack(k, p)
			continue
		}
		stay = append(stay, p)
	}
	s.unschedulable = stay
}

// onMove drains every unschedulable pod back toward active/backoff and
// bumps movingCycle so in-flight failures route through backoff instead
// of the unschedulable list.
func (s *Scheduler) onMove(k *kernel.Kernel) {
	pending := s.unschedulable
	s.unschedulable = nil
	for _, p := range pending {
		s.routeBack(k, p)
	}
	s.movingCycle = s.schedulingCycle
}

func (s *Scheduler) routeBack(k *kernel.Kernel, p *types.Pod) {
	remaining := backoffDuration(p.SchedulingAttempts, s.cfg.PodInitialBackoffDuration, s.cfg.PodMaxBackoffDuration) - (k.CurrentTime() - p.SchedulingTimestamp)
	if remaining <= 0 {
		s.enqueueActive(p)
		s.maybeKickCycle(k)
		return
	}
	k.Emit(s.addr, s.addr, simevents.PodBackoffRetry{Pod: p}, remaining)
}

// StartFlushTimer kicks off the periodic unschedulable-list flush. Call
// once at wiring time.
func (s *Scheduler) StartFlushTimer(k *kernel.Kernel) {
	k.Emit(s.addr, s.addr, simevents.UnschedulableFlush{}, s.cfg.UnschedulableFlushTimeout)
}

// SchedulingCycleCount reports the running count of scheduling cycles
// run so far, surfaced in the metrics stream (SPEC_FULL.md §6).
func (s *Scheduler) SchedulingCycleCount() uint64 {
	return s.schedulingCycle
}

// UnschedulableCount reports the current size of the unschedulable list,
// surfaced through the Driver's UnschedulableCount accessor.
func (s *Scheduler) UnschedulableCount() int {
	return len(s.unschedulable)
}

// UnschedulablePods returns a snapshot of the pending pods for the
// cluster autoscaler's bin-packing simulation.
func (s *Scheduler) UnschedulablePods() []*types.Pod {
	out := make([]*types.Pod, len(s.unschedulable))
	copy(out, s.unschedulable)
	return out
}
