package router

import (
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/sawpanic/marketflow/internal/models"
)

// Strategy selects how the load balancer picks among peer channel instances.
type Strategy string

const (
	StrategyRoundRobin     Strategy = "round-robin"
	StrategyLeastLoad      Strategy = "least-load"
	StrategyConsistentHash Strategy = "consistent-hash"
	StrategyHealthScore    Strategy = "health-score"
)

// Balancer picks one channel instance from a candidate set. Ties break by
// insertion order; candidates must come from the router's registration order.
type Balancer struct {
	strategy Strategy

	mu      sync.Mutex
	cursors map[models.DataType]int
}

// NewBalancer builds a balancer. Empty or unrecognized strategies fall back
// to health-score.
func NewBalancer(strategy Strategy) *Balancer {
	switch strategy {
	case StrategyRoundRobin, StrategyLeastLoad, StrategyConsistentHash, StrategyHealthScore:
	default:
		strategy = StrategyHealthScore
	}
	return &Balancer{strategy: strategy, cursors: make(map[models.DataType]int)}
}

// Strategy returns the configured strategy.
func (b *Balancer) Strategy() Strategy { return b.strategy }

// Pick returns the selected channel, nil when candidates is empty.
func (b *Balancer) Pick(dataType models.DataType, candidates []Channel) Channel {
	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	switch b.strategy {
	case StrategyRoundRobin:
		return b.pickRoundRobin(dataType, candidates)
	case StrategyLeastLoad:
		return pickLeastLoad(candidates)
	case StrategyConsistentHash:
		return pickConsistentHash(candidates)
	default:
		return pickHealthScore(candidates)
	}
}

func (b *Balancer) pickRoundRobin(dataType models.DataType, candidates []Channel) Channel {
	b.mu.Lock()
	idx := b.cursors[dataType] % len(candidates)
	b.cursors[dataType]++
	b.mu.Unlock()
	return candidates[idx]
}

func pickLeastLoad(candidates []Channel) Channel {
	best := candidates[0]
	bestLoad := instanceLoad(best)
	for _, c := range candidates[1:] {
		if load := instanceLoad(c); load < bestLoad {
			best, bestLoad = c, load
		}
	}
	return best
}

func instanceLoad(c Channel) float64 {
	return float64(c.QueueSize()) + c.Metrics().EMALatencyMs()/100
}

// pickConsistentHash hashes the sorted name set so the pick is deterministic
// for a given membership and reshuffles only when membership changes.
func pickConsistentHash(candidates []Channel) Channel {
	names := make([]string, len(candidates))
	byName := make(map[string]Channel, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name()
		byName[c.Name()] = c
	}
	sort.Strings(names)

	h := fnv.New32a()
	h.Write([]byte(strings.Join(names, ",")))
	return byName[names[int(h.Sum32())%len(names)]]
}

// pickHealthScore prefers healthy instances and returns the highest score.
// With no healthy instance it scores the full set; the router's fallback
// policy decides whether that pick is used.
func pickHealthScore(candidates []Channel) Channel {
	pool := make([]Channel, 0, len(candidates))
	for _, c := range candidates {
		if c.IsHealthy() {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		pool = candidates
	}

	best := pool[0]
	bestScore := best.HealthScore()
	for _, c := range pool[1:] {
		if score := c.HealthScore(); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
