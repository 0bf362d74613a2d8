package swarm

import (
	"sync"
	"testing"
)

func TestNewAggregatorAlphaFallback(t *testing.T) {
	AssertInDelta(t, defaultLearningRate, NewAggregator(0, true).alpha, 1e-9, "zero alpha")
	AssertInDelta(t, defaultLearningRate, NewAggregator(1.5, true).alpha, 1e-9, "alpha above 1")
	AssertInDelta(t, 1.0, NewAggregator(1.0, true).alpha, 1e-9, "alpha at the boundary")
}

func TestAggregatorCounts(t *testing.T) {
	agg := NewAggregator(0.2, true)

	agg.RecordOutcome(StrategyLanguage, true, 0.9)
	agg.RecordOutcome(StrategyLanguage, true, 0.8)
	agg.RecordOutcome(StrategyGeneral, false, 0)
	agg.RecordCancelled()

	snap := agg.Snapshot()
	AssertEqual(t, 4, snap.TotalTasks, "total tasks")
	AssertEqual(t, 2, snap.SucceededTasks, "succeeded tasks")
	AssertEqual(t, 1, snap.FailedTasks, "failed tasks")
	AssertEqual(t, 1, snap.CancelledTasks, "cancelled tasks")
	AssertInDelta(t, 0.5, snap.SuccessRate, 1e-9, "success rate includes cancellations")
	AssertInDelta(t, 0.85, snap.AverageQuality, 1e-9, "average quality over successes")

	if len(snap.Strategies) != 2 {
		t.Fatalf("Expected 2 strategy records, got %d", len(snap.Strategies))
	}
	// Snapshot orders records by tag for stable output.
	AssertEqual(t, StrategyGeneral, snap.Strategies[0].Tag, "first record tag")
	AssertEqual(t, 1, snap.Strategies[0].Failed, "general failures")
	AssertEqual(t, 2, snap.Strategies[1].Succeeded, "language successes")
}

func TestLearnedWeightEWMA(t *testing.T) {
	agg := NewAggregator(0.2, true)

	agg.RecordOutcome(StrategyLanguage, true, 0.9)
	AssertInDelta(t, 1.0, agg.LearnedWeight(StrategyLanguage), 1e-9, "weight after success")

	agg.RecordOutcome(StrategyLanguage, false, 0)
	AssertInDelta(t, 0.8, agg.LearnedWeight(StrategyLanguage), 1e-9, "weight after failure")

	agg.RecordOutcome(StrategyLanguage, true, 0.9)
	AssertInDelta(t, 0.84, agg.LearnedWeight(StrategyLanguage), 1e-9, "weight recovering")
}

func TestLearnedWeightFloor(t *testing.T) {
	agg := NewAggregator(0.9, true)

	for i := 0; i < 5; i++ {
		agg.RecordOutcome(StrategySequence, false, 0)
	}
	AssertInDelta(t, weightFloor, agg.LearnedWeight(StrategySequence), 1e-9, "floored weight")
}

func TestLearnedWeightUnknownStrategy(t *testing.T) {
	agg := NewAggregator(0.2, true)
	AssertInDelta(t, 1.0, agg.LearnedWeight("never-seen"), 1e-9, "unknown strategy weight")
}

func TestLearningDisabled(t *testing.T) {
	agg := NewAggregator(0.2, false)

	agg.RecordOutcome(StrategyLanguage, false, 0)
	agg.RecordOutcome(StrategyLanguage, false, 0)

	AssertInDelta(t, 1.0, agg.LearnedWeight(StrategyLanguage), 1e-9, "frozen weight")

	// Counts accumulate even when learning is off.
	snap := agg.Snapshot()
	AssertEqual(t, 2, snap.FailedTasks, "failed tasks")
}

func TestAggregatorActiveTasks(t *testing.T) {
	agg := NewAggregator(0.2, true)

	agg.taskStarted()
	agg.taskStarted()
	AssertEqual(t, 2, agg.Snapshot().ActiveTasks, "active while running")

	agg.taskFinished()
	agg.taskFinished()
	AssertEqual(t, 0, agg.Snapshot().ActiveTasks, "active after completion")
}

func TestAggregatorConcurrentRecording(t *testing.T) {
	agg := NewAggregator(0.2, true)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				agg.RecordOutcome(StrategyGeneral, i%2 == 0, 0.9)
			}
		}()
	}
	wg.Wait()

	snap := agg.Snapshot()
	AssertEqual(t, 2000, snap.TotalTasks, "total after concurrent recording")
	AssertEqual(t, 1000, snap.SucceededTasks, "succeeded after concurrent recording")
	AssertEqual(t, 1000, snap.FailedTasks, "failed after concurrent recording")
}

func TestClampHelpers(t *testing.T) {
	AssertInDelta(t, weightFloor, clampWeight(0.01), 1e-9, "weight floor")
	AssertInDelta(t, weightCeiling, clampWeight(7.5), 1e-9, "weight ceiling")
	AssertInDelta(t, 1.3, clampWeight(1.3), 1e-9, "weight in range")

	AssertInDelta(t, 0, clamp01(-2), 1e-9, "clamp below zero")
	AssertInDelta(t, 1, clamp01(3), 1e-9, "clamp above one")
	AssertInDelta(t, 0.42, clamp01(0.42), 1e-9, "clamp in range")
}
