package swarm

import (
	"sort"
	"sync"
)

const (
	// defaultLearningRate is the EWMA decay constant for learned weights.
	defaultLearningRate = 0.2
	// weightFloor and weightCeiling clamp learned weights so no strategy is
	// driven to zero or to runaway dominance.
	weightFloor   = 0.1
	weightCeiling = 2.0
)

// StrategyRecord is the per-strategy slice of a stats snapshot.
type StrategyRecord struct {
	Tag       StrategyTag `json:"tag"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Weight    float64     `json:"weight"`
}

// Stats is a point-in-time snapshot of orchestrator telemetry. Success rate
// is always recomputed from the counts, never carried independently.
type Stats struct {
	SessionID      string           `json:"session_id"`
	TotalTasks     int              `json:"total_tasks"`
	SucceededTasks int              `json:"succeeded_tasks"`
	FailedTasks    int              `json:"failed_tasks"`
	CancelledTasks int              `json:"cancelled_tasks"`
	SuccessRate    float64          `json:"success_rate"`
	AverageQuality float64          `json:"average_quality"`
	ActiveTasks    int              `json:"active_tasks"`
	CacheHits      int64            `json:"cache_hits"`
	CacheMisses    int64            `json:"cache_misses"`
	Backends       []string         `json:"backends,omitempty"`
	Strategies     []StrategyRecord `json:"strategies,omitempty"`
}

type strategyCounters struct {
	succeeded int
	failed    int
	weight    float64
}

// Aggregator accumulates outcome telemetry and maintains the learned weight
// multiplier per strategy. It is the only state shared between concurrent
// task executions, so every read and update goes through its mutex;
// concurrent completions must never lose an increment.
type Aggregator struct {
	mu sync.RWMutex

	alpha    float64
	learning bool

	total      int
	succeeded  int
	failed     int
	cancelled  int
	qualitySum float64
	active     int

	records map[StrategyTag]*strategyCounters
}

// NewAggregator creates an aggregator. alpha is the EWMA decay constant;
// values outside (0,1] fall back to the default. learning toggles weight
// updates; counts are always maintained.
func NewAggregator(alpha float64, learning bool) *Aggregator {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultLearningRate
	}
	return &Aggregator{
		alpha:    alpha,
		learning: learning,
		records:  make(map[StrategyTag]*strategyCounters),
	}
}

// LearnedWeight returns the current weight multiplier for a strategy.
// Strategies with no recorded outcomes weigh 1.
func (a *Aggregator) LearnedWeight(tag StrategyTag) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if rec, ok := a.records[tag]; ok {
		return rec.weight
	}
	return 1.0
}

// RecordOutcome registers one terminal success or failure. Quality
// contributes to the running average only on success. The learned weight
// moves by EWMA toward 1 on success and 0 on failure, clamped to
// [weightFloor, weightCeiling].
func (a *Aggregator) RecordOutcome(tag StrategyTag, success bool, quality float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	rec := a.record(tag)
	if success {
		a.succeeded++
		a.qualitySum += quality
		rec.succeeded++
	} else {
		a.failed++
		rec.failed++
	}

	if !a.learning {
		return
	}
	indicator := 0.0
	if success {
		indicator = 1.0
	}
	rec.weight = clampWeight(a.alpha*indicator + (1-a.alpha)*rec.weight)
}

// RecordCancelled registers an external abort. Cancellations count toward
// totals but carry no strategy signal, so weights stay put.
func (a *Aggregator) RecordCancelled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	a.cancelled++
}

func (a *Aggregator) record(tag StrategyTag) *strategyCounters {
	rec, ok := a.records[tag]
	if !ok {
		rec = &strategyCounters{weight: 1.0}
		a.records[tag] = rec
	}
	return rec
}

func (a *Aggregator) taskStarted() {
	a.mu.Lock()
	a.active++
	a.mu.Unlock()
}

func (a *Aggregator) taskFinished() {
	a.mu.Lock()
	a.active--
	a.mu.Unlock()
}

// Snapshot returns a consistent copy of the aggregates.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{
		TotalTasks:     a.total,
		SucceededTasks: a.succeeded,
		FailedTasks:    a.failed,
		CancelledTasks: a.cancelled,
		ActiveTasks:    a.active,
	}
	if a.total > 0 {
		s.SuccessRate = float64(a.succeeded) / float64(a.total)
	}
	if a.succeeded > 0 {
		s.AverageQuality = a.qualitySum / float64(a.succeeded)
	}

	s.Strategies = make([]StrategyRecord, 0, len(a.records))
	for tag, rec := range a.records {
		s.Strategies = append(s.Strategies, StrategyRecord{
			Tag:       tag,
			Succeeded: rec.succeeded,
			Failed:    rec.failed,
			Weight:    rec.weight,
		})
	}
	sort.Slice(s.Strategies, func(i, j int) bool {
		return s.Strategies[i].Tag < s.Strategies[j].Tag
	})
	return s
}

func clampWeight(w float64) float64 {
	if w < weightFloor {
		return weightFloor
	}
	if w > weightCeiling {
		return weightCeiling
	}
	return w
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
