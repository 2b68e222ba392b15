package invoker

import (
	"sort"

	"github.com/oriys/whisk/internal/metrics"
	"github.com/oriys/whisk/internal/werr"
)

// Scheduler picks an invoker for an action invocation using the
// registry's current view of the fleet.
type Scheduler struct {
	registry *Registry
}

// NewScheduler builds a Scheduler over registry.
func NewScheduler(registry *Registry) *Scheduler {
	return &Scheduler{registry: registry}
}

// Select deterministically picks the invoker that should run an
// invocation requiring runtime and memoryMB:
//
//  1. candidate filter: healthy, has enough free memory, supports the
//     runtime
//  2. warm/cold partition: invokers already warm for the runtime are
//     preferred over cold ones
//  3. within a partition, the candidate with the most available memory
//     wins
//  4. ties are broken lexicographically by invoker ID, so repeated
//     calls with an unchanged fleet always pick the same invoker
//
// Select returns a werr Kind NotFound error when no invoker qualifies.
func (s *Scheduler) Select(runtime string, memoryMB int) (*Invoker, error) {
	candidates := s.candidates(runtime, memoryMB)
	if len(candidates) == 0 {
		return nil, werr.NotFoundf("no invoker available for runtime %s requiring %dMB", runtime, memoryMB)
	}

	warm := make([]*Invoker, 0, len(candidates))
	cold := make([]*Invoker, 0, len(candidates))
	for _, inv := range candidates {
		if inv.IsWarmFor(runtime) {
			warm = append(warm, inv)
		} else {
			cold = append(cold, inv)
		}
	}

	pool := warm
	if len(pool) == 0 {
		pool = cold
	} else {
		metrics.Global().RecordWarmInvokerHit()
	}

	return pickByAvailableMemoryThenID(pool), nil
}

func (s *Scheduler) candidates(runtime string, memoryMB int) []*Invoker {
	var out []*Invoker
	for _, inv := range s.registry.ListHealthyInvokers() {
		if !inv.SupportsRuntime(runtime) {
			continue
		}
		if inv.AvailableMB() < memoryMB {
			continue
		}
		out = append(out, inv)
	}
	return out
}

// pickByAvailableMemoryThenID selects the invoker with the most
// available memory, breaking ties lexicographically by ID.
func pickByAvailableMemoryThenID(pool []*Invoker) *Invoker {
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].AvailableMB() != pool[j].AvailableMB() {
			return pool[i].AvailableMB() > pool[j].AvailableMB()
		}
		return pool[i].ID < pool[j].ID
	})
	return pool[0]
}
