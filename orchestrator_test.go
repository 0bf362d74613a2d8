package swarm

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func newTestConfig() *Config {
	return &Config{
		Swarm: SwarmConfig{
			MaxConcurrent:    4,
			DefaultBackend:   "mock",
			QualityThreshold: 0.8,
			EnableLearning:   true,
			LearningRate:     0.2,
			CacheSize:        32,
			CacheTTLSeconds:  60,
		},
		Backends: map[string]BackendConfig{
			"mock": {
				Provider:           ProviderMock,
				Model:              "mock",
				TimeoutSeconds:     5,
				MaxAttempts:        3,
				EnableVerification: true,
			},
		},
	}
}

// newTestOrchestrator wires a scripted backend into an initialized
// orchestrator with near-zero retry pauses.
func newTestOrchestrator(t *testing.T, backend *MockBackend, mutate func(*Config)) *Orchestrator {
	t.Helper()

	cfg := newTestConfig()
	if mutate != nil {
		mutate(cfg)
	}
	o := New(cfg).
		WithBackend("mock", backend).
		WithRetryPolicy(&RetryPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     4 * time.Millisecond,
			Multiplier:      2.0,
		})
	if err := o.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func strategyRecord(t *testing.T, stats Stats, tag StrategyTag) StrategyRecord {
	t.Helper()
	for _, rec := range stats.Strategies {
		if rec.Tag == tag {
			return rec
		}
	}
	t.Fatalf("strategy %s not found in stats", tag)
	return StrategyRecord{}
}

func drainEvents(ch <-chan TaskEvent) []TaskEvent {
	var events []TaskEvent
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestExecuteTaskRequiresInitialize(t *testing.T) {
	o := New(nil)

	_, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "hello"))
	AssertErrorIs(t, err, ErrNotInitialized, "ExecuteTask before Initialize")

	_, err = o.ExecuteTasks(context.Background(), []*Task{NewTask(KindGeneral, "hello")})
	AssertErrorIs(t, err, ErrNotInitialized, "ExecuteTasks before Initialize")
}

func TestInitializeTwice(t *testing.T) {
	o := New(newTestConfig()).WithBackend("mock", NewMockBackend("mock"))
	AssertNoError(t, o.Initialize(), "first Initialize")
	defer o.Close()

	AssertErrorIs(t, o.Initialize(), ErrAlreadyInitialized, "second Initialize")
}

func TestInitializeRequiresBackends(t *testing.T) {
	o := New(&Config{})
	AssertErrorIs(t, o.Initialize(), ErrNoBackends, "no backends")
}

func TestExecuteTaskSuccess(t *testing.T) {
	backend := NewMockBackend("mock").
		AddOutcome("```go\nfunc add(a, b int) int {\n\treturn a + b\n}\n```", 0.8)
	o := newTestOrchestrator(t, backend, nil)

	task := NewCodeTask("Write a function that adds two integers")
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")

	if !result.Success {
		t.Fatalf("Expected success, got status %s (%s)", result.Status, result.Error)
	}
	AssertEqual(t, StatusSucceeded, result.Status, "status")
	AssertEqual(t, 1, result.Attempts, "attempts")
	AssertEqual(t, StrategyLanguage, result.StrategyUsed, "strategy")
	AssertEqual(t, "mock", result.BackendUsed, "backend")
	AssertInDelta(t, 0.9, result.Quality, 1e-9, "quality")

	wantTrace := []TaskStatus{
		StatusPending, StatusAnalyzing, StatusDesigning,
		StatusExecuting, StatusVerifying, StatusSucceeded,
	}
	if !reflect.DeepEqual(wantTrace, task.Trace) {
		t.Errorf("Expected trace %v, got %v", wantTrace, task.Trace)
	}

	if result.Cost == nil {
		t.Fatal("Expected a cost estimate on the result")
	}
	if result.Cost.PromptTokens == 0 {
		t.Error("Expected prompt tokens to be counted")
	}
	AssertEqual(t, 1, backend.Calls(), "generate calls")
}

func TestExecuteTaskRefinement(t *testing.T) {
	backend := NewMockBackend("mock").
		AddOutcome("first take", 0).
		AddOutcome("second take", 0).
		AddOutcome("final take", 0.8)
	o := newTestOrchestrator(t, backend, nil)

	task := NewTask(KindGeneral, "Summarize the constraints of the deployment environment").
		WithQualityThreshold(0.8)
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")

	if !result.Success {
		t.Fatalf("Expected success after refinement, got %s (%s)", result.Status, result.Error)
	}
	AssertEqual(t, 3, result.Attempts, "attempts")
	AssertEqual(t, "final take", result.Artifact, "accepted artifact")
	AssertInDelta(t, 0.9, result.Quality, 1e-9, "final quality")

	wantQualities := []float64{0.5, 0.5, 0.9}
	if len(result.History) != len(wantQualities) {
		t.Fatalf("Expected %d attempts in history, got %d", len(wantQualities), len(result.History))
	}
	for i, want := range wantQualities {
		AssertInDelta(t, want, result.History[i].Quality, 1e-9, fmt.Sprintf("attempt %d quality", i+1))
	}

	wantTrace := []TaskStatus{
		StatusPending, StatusAnalyzing, StatusDesigning,
		StatusExecuting, StatusVerifying, StatusRefining,
		StatusExecuting, StatusVerifying, StatusRefining,
		StatusExecuting, StatusVerifying, StatusSucceeded,
	}
	if !reflect.DeepEqual(wantTrace, task.Trace) {
		t.Errorf("Expected trace %v, got %v", wantTrace, task.Trace)
	}

	// Each refinement cycle extends the prompt with the rejection reason.
	prompts := backend.Prompts()
	if len(prompts) != 3 {
		t.Fatalf("Expected 3 prompts, got %d", len(prompts))
	}
	AssertEqual(t, task.Description, prompts[0], "initial prompt")
	for _, fragment := range []string{task.Description, "[revision 1]", "below threshold"} {
		if !strings.Contains(prompts[1], fragment) {
			t.Errorf("Expected second prompt to contain %q, got %q", fragment, prompts[1])
		}
	}
	if !strings.Contains(prompts[2], "[revision 2]") {
		t.Errorf("Expected third prompt to contain the second revision, got %q", prompts[2])
	}
}

func TestExecuteTaskExhaustsAttempts(t *testing.T) {
	backend := NewMockBackend("mock").AddOutcome("too thin", 0)
	o := newTestOrchestrator(t, backend, nil)

	task := NewTask(KindGeneral, "Outline the rollout risks for the new queue").
		WithQualityThreshold(0.8)
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusFailed, result.Status, "status")
	AssertEqual(t, 3, result.Attempts, "attempts")
	AssertEqual(t, "quality 0.50 below threshold 0.80", result.Error, "rejection reason")
	AssertInDelta(t, 0.5, result.Quality, 1e-9, "last rejected quality")

	// One terminal failure is recorded against the strategy, not one per attempt.
	rec := strategyRecord(t, o.Stats(), StrategyGeneral)
	AssertEqual(t, 1, rec.Failed, "recorded failures")
	AssertInDelta(t, 0.8, rec.Weight, 1e-9, "learned weight after failure")
}

func TestExecuteTaskGenerationFailure(t *testing.T) {
	backend := NewMockBackend("mock").AddError(errors.New("upstream unavailable"))
	o := newTestOrchestrator(t, backend, nil)

	task := NewTask(KindGeneral, "Collect the release notes")
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusFailed, result.Status, "status")
	AssertEqual(t, 3, result.Attempts, "attempts")
	if !strings.Contains(result.Error, "upstream unavailable") {
		t.Errorf("Expected the backend error in the result, got %q", result.Error)
	}

	if len(result.History) != 3 {
		t.Fatalf("Expected 3 attempts in history, got %d", len(result.History))
	}
	for i, attempt := range result.History {
		if attempt.Failure == nil || attempt.Failure.Class != FailureGeneration {
			t.Errorf("Expected attempt %d to fail with class generation, got %+v", i+1, attempt.Failure)
		}
	}

	wantTrace := []TaskStatus{
		StatusPending, StatusAnalyzing, StatusDesigning,
		StatusExecuting, StatusRefining,
		StatusExecuting, StatusRefining,
		StatusExecuting, StatusFailed,
	}
	if !reflect.DeepEqual(wantTrace, task.Trace) {
		t.Errorf("Expected trace %v, got %v", wantTrace, task.Trace)
	}

	if result.Cost == nil {
		t.Fatal("Expected a cost estimate even for failed tasks")
	}
	AssertEqual(t, 0, result.Cost.CompletionTokens, "completion tokens on failure")
}

func TestExecuteTaskTimeoutClass(t *testing.T) {
	backend := NewMockBackend("mock").AddError(context.DeadlineExceeded)
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		m := cfg.Backends["mock"]
		m.MaxAttempts = 1
		cfg.Backends["mock"] = m
	})

	result, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Slow catalog sync"))
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusFailed, result.Status, "status")
	if result.History[0].Failure.Class != FailureTimeout {
		t.Errorf("Expected a timeout failure class, got %s", result.History[0].Failure.Class)
	}
}

func TestExecuteTaskCancelledMidRun(t *testing.T) {
	backend := NewMockBackend("mock").WithLatency(200 * time.Millisecond)
	o := newTestOrchestrator(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	task := NewTask(KindGeneral, "Long running synthesis")
	result, err := o.ExecuteTask(ctx, task)
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusCancelled, result.Status, "status")
	AssertEqual(t, "context canceled", result.Error, "cancellation cause")
	if len(result.History) != 1 || result.History[0].Failure.Class != FailureCancelled {
		t.Fatalf("Expected one cancelled attempt, got %+v", result.History)
	}
	if result.Cost == nil {
		t.Error("Expected the aborted attempt to carry its cost")
	}
	AssertEqual(t, StatusCancelled, task.Trace[len(task.Trace)-1], "trace tail")
	AssertEqual(t, 1, o.Stats().CancelledTasks, "cancelled count")
}

func TestExecuteTaskCancelledBeforeAdmission(t *testing.T) {
	backend := NewMockBackend("mock")
	o := newTestOrchestrator(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewTask(KindGeneral, "Never admitted")
	result, err := o.ExecuteTask(ctx, task)
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusCancelled, result.Status, "status")
	AssertEqual(t, "context canceled", result.Error, "cancellation cause")
	AssertEqual(t, 0, result.Attempts, "attempts")
	if len(result.History) != 0 {
		t.Errorf("Expected no attempts, got %d", len(result.History))
	}
	if !reflect.DeepEqual([]TaskStatus{StatusPending, StatusCancelled}, task.Trace) {
		t.Errorf("Expected a pending->cancelled trace, got %v", task.Trace)
	}
	AssertEqual(t, 0, backend.Calls(), "generate calls")
}

func TestExecuteTaskNil(t *testing.T) {
	o := newTestOrchestrator(t, NewMockBackend("mock"), nil)

	_, err := o.ExecuteTask(context.Background(), nil)
	AssertError(t, err, "nil task")
	if err != nil && !strings.Contains(err.Error(), "cannot be nil") {
		t.Errorf("Expected a nil-task error, got %v", err)
	}
}

func TestExecuteTaskBackendNotFound(t *testing.T) {
	o := newTestOrchestrator(t, NewMockBackend("mock"), nil)

	task := NewTask(KindGeneral, "Pinned to nowhere").WithBackend("missing")
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")

	AssertEqual(t, StatusFailed, result.Status, "status")
	for _, fragment := range []string{"backend not found", `"missing"`} {
		if !strings.Contains(result.Error, fragment) {
			t.Errorf("Expected %q in error, got %q", fragment, result.Error)
		}
	}
	if !reflect.DeepEqual([]TaskStatus{StatusPending, StatusAnalyzing, StatusFailed}, task.Trace) {
		t.Errorf("Expected the task to fail during analysis, got trace %v", task.Trace)
	}
	// The task never reached strategy selection, so no strategy takes the blame.
	if n := len(o.Stats().Strategies); n != 0 {
		t.Errorf("Expected no strategy records, got %d", n)
	}
}

func TestExecuteTasksBoundedConcurrency(t *testing.T) {
	backend := NewMockBackend("mock").WithLatency(60 * time.Millisecond)
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		cfg.Swarm.MaxConcurrent = 2
	})

	tasks := make([]*Task, 6)
	for i := range tasks {
		tasks[i] = NewTask(KindGeneral, fmt.Sprintf("Describe item %d", i))
	}

	results, err := o.ExecuteTasks(context.Background(), tasks)
	AssertNoError(t, err, "ExecuteTasks")

	if len(results) != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), len(results))
	}
	for i, result := range results {
		if !result.Success {
			t.Errorf("Expected task %d to succeed, got %s (%s)", i, result.Status, result.Error)
		}
		AssertEqual(t, tasks[i].ID, result.TaskID, "input-order results")
	}

	AssertEqual(t, 6, backend.Calls(), "generate calls")
	if peak := backend.MaxInFlight(); peak < 1 || peak > 2 {
		t.Errorf("Expected at most 2 concurrent generate calls, observed %d", peak)
	}

	stats := o.Stats()
	AssertEqual(t, 6, stats.SucceededTasks, "succeeded count")
	AssertEqual(t, 0, stats.ActiveTasks, "active tasks after batch")
}

func TestExecuteTaskCacheHit(t *testing.T) {
	backend := NewMockBackend("mock")
	o := newTestOrchestrator(t, backend, nil)

	first := NewCodeTask("Write a function that reverses a slice")
	r1, err := o.ExecuteTask(context.Background(), first)
	AssertNoError(t, err, "first ExecuteTask")
	AssertEqual(t, 1, backend.Calls(), "calls after first run")

	second := NewCodeTask("Write a function that reverses a slice")
	r2, err := o.ExecuteTask(context.Background(), second)
	AssertNoError(t, err, "second ExecuteTask")

	AssertEqual(t, 1, backend.Calls(), "calls after cache hit")
	AssertEqual(t, StatusSucceeded, r2.Status, "cached status")
	AssertEqual(t, r1.Artifact, r2.Artifact, "cached artifact")
	if len(r2.History) != 1 || !r2.History[0].Cached {
		t.Fatalf("Expected one cached attempt, got %+v", r2.History)
	}
	if r2.Cost != nil {
		t.Errorf("Expected no cost for a cached replay, got %+v", r2.Cost)
	}
	stats := o.Stats()
	AssertEqual(t, 2, stats.SucceededTasks, "succeeded count")
	AssertEqual(t, int64(1), stats.CacheHits, "cache hits")
	AssertEqual(t, int64(1), stats.CacheMisses, "cache misses")
}

func TestExecuteTaskCacheRespectsThreshold(t *testing.T) {
	backend := NewMockBackend("mock").
		AddOutcome("```go\nfunc clamp(v float64) float64 { return v }\n```", 0.8).
		AddOutcome("```go\nfunc clamp(v, lo, hi float64) float64 {\n\tif v < lo {\n\t\treturn lo\n\t}\n\tif v > hi {\n\t\treturn hi\n\t}\n\treturn v\n}\n```", 1.0)
	o := newTestOrchestrator(t, backend, nil)

	first := NewCodeTask("Write a clamp helper for float64 values")
	r1, err := o.ExecuteTask(context.Background(), first)
	AssertNoError(t, err, "first ExecuteTask")
	AssertInDelta(t, 0.9, r1.Quality, 1e-9, "first quality")
	AssertEqual(t, 1, backend.Calls(), "calls after first run")

	// The cached quality 0.9 does not clear the stricter bar, so the task
	// regenerates instead of replaying.
	second := NewCodeTask("Write a clamp helper for float64 values").WithQualityThreshold(0.95)
	r2, err := o.ExecuteTask(context.Background(), second)
	AssertNoError(t, err, "second ExecuteTask")
	AssertEqual(t, StatusSucceeded, r2.Status, "second status")
	AssertEqual(t, 2, backend.Calls(), "calls after strict resubmission")
	AssertInDelta(t, 1.0, r2.Quality, 1e-9, "second quality")
	if len(r2.History) != 1 || r2.History[0].Cached {
		t.Fatalf("Expected one fresh attempt, got %+v", r2.History)
	}
	if r2.Artifact == r1.Artifact {
		t.Error("Expected the strict resubmission to produce a new artifact")
	}

	// The stronger artifact replaced the cache entry, so a default-threshold
	// resubmission now replays it.
	third := NewCodeTask("Write a clamp helper for float64 values")
	r3, err := o.ExecuteTask(context.Background(), third)
	AssertNoError(t, err, "third ExecuteTask")
	AssertEqual(t, 2, backend.Calls(), "calls after cached replay")
	AssertEqual(t, r2.Artifact, r3.Artifact, "replayed artifact")
	if len(r3.History) != 1 || !r3.History[0].Cached {
		t.Fatalf("Expected one cached attempt, got %+v", r3.History)
	}
}

func TestExecuteTaskLearning(t *testing.T) {
	backend := NewMockBackend("mock").
		AddError(errors.New("warmup failure")).
		AddOutcome("recovered", 0.8)
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		cfg.Swarm.LearningRate = 0.5
		m := cfg.Backends["mock"]
		m.MaxAttempts = 1
		cfg.Backends["mock"] = m
	})

	r1, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Evaluate the first rollout"))
	AssertNoError(t, err, "first ExecuteTask")
	AssertEqual(t, StatusFailed, r1.Status, "first status")
	AssertInDelta(t, 0.5, strategyRecord(t, o.Stats(), StrategyGeneral).Weight, 1e-9, "weight after failure")

	r2, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Evaluate the second rollout"))
	AssertNoError(t, err, "second ExecuteTask")
	AssertEqual(t, StatusSucceeded, r2.Status, "second status")
	AssertInDelta(t, 0.75, strategyRecord(t, o.Stats(), StrategyGeneral).Weight, 1e-9, "weight recovering")
}

func TestOrchestratorEvents(t *testing.T) {
	backend := NewMockBackend("mock")
	o := newTestOrchestrator(t, backend, nil)

	_, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Emit lifecycle events"))
	AssertNoError(t, err, "ExecuteTask")

	events := drainEvents(o.Events())
	var transitions, attempts, terminals int
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			t.Error("Expected every event to carry a timestamp")
		}
		switch ev.Type {
		case EventTransition:
			transitions++
		case EventAttempt:
			attempts++
		case EventTerminal:
			terminals++
			AssertEqual(t, StatusSucceeded, ev.Status, "terminal status")
			AssertEqual(t, "mock", ev.Backend, "terminal backend")
			if !ev.Accepted {
				t.Error("Expected the terminal event to be accepted")
			}
		}
	}
	if transitions < 5 {
		t.Errorf("Expected at least 5 transition events, got %d", transitions)
	}
	AssertEqual(t, 1, attempts, "attempt events")
	AssertEqual(t, 1, terminals, "terminal events")
}

func TestOrchestratorStats(t *testing.T) {
	o := newTestOrchestrator(t, NewMockBackend("mock"), nil)

	_, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Track this run"))
	AssertNoError(t, err, "ExecuteTask")

	stats := o.Stats()
	AssertEqual(t, o.SessionID(), stats.SessionID, "session id")
	if stats.SessionID == "" {
		t.Error("Expected a non-empty session id")
	}
	if !reflect.DeepEqual([]string{"mock"}, stats.Backends) {
		t.Errorf("Expected backends [mock], got %v", stats.Backends)
	}
	AssertEqual(t, 1, stats.TotalTasks, "total tasks")
	AssertInDelta(t, 1.0, stats.SuccessRate, 1e-9, "success rate")
}

func TestOrchestratorHealthCheck(t *testing.T) {
	backend := NewMockBackend("mock")
	o := newTestOrchestrator(t, backend, nil)

	health := o.HealthCheck(context.Background())
	AssertEqual(t, true, health["mock"], "healthy backend")

	backend.WithHealthy(false)
	health = o.HealthCheck(context.Background())
	AssertEqual(t, false, health["mock"], "unhealthy backend")
}

func TestOrchestratorArchivesResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.db")
	backend := NewMockBackend("mock")
	o := newTestOrchestrator(t, backend, func(cfg *Config) {
		cfg.Swarm.ArchivePath = path
	})

	task := NewCodeTask("Write a parser for the rollout manifest")
	result, err := o.ExecuteTask(context.Background(), task)
	AssertNoError(t, err, "ExecuteTask")
	AssertNoError(t, o.Close(), "Close")

	archive, err := OpenArchive(path, "inspect")
	AssertNoError(t, err, "reopen archive")
	defer archive.Close()

	rec, err := archive.Get(task.ID)
	AssertNoError(t, err, "Get archived result")
	AssertEqual(t, o.SessionID(), rec.SessionID, "archived session")
	AssertEqual(t, KindCodeGeneration, rec.Kind, "archived kind")
	AssertEqual(t, task.Description, rec.Description, "archived description")
	AssertEqual(t, StatusSucceeded, rec.Status, "archived status")
	AssertEqual(t, result.Artifact, rec.Artifact, "archived artifact")
	AssertEqual(t, 1, rec.Attempts, "archived attempts")
	AssertInDelta(t, result.Quality, rec.Quality, 1e-9, "archived quality")
	if len(rec.History) != 1 {
		t.Errorf("Expected 1 archived attempt, got %d", len(rec.History))
	}
	if time.Since(rec.CompletedAt) > time.Minute {
		t.Errorf("Expected a recent completion timestamp, got %v", rec.CompletedAt)
	}
}

func TestOrchestratorClose(t *testing.T) {
	o := newTestOrchestrator(t, NewMockBackend("mock"), nil)

	AssertNoError(t, o.Close(), "Close")
	_, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "after close"))
	AssertErrorIs(t, err, ErrNotInitialized, "ExecuteTask after Close")
	AssertNoError(t, o.Close(), "double Close")
}

func TestDefaultBackendResolution(t *testing.T) {
	primary := NewMockBackend("primary")
	secondary := NewMockBackend("secondary")
	cfg := &Config{Swarm: SwarmConfig{
		MaxConcurrent:    2,
		DefaultBackend:   "secondary",
		QualityThreshold: 0.8,
		LearningRate:     0.2,
		CacheSize:        8,
		CacheTTLSeconds:  60,
	}}
	o := New(cfg).WithBackend("primary", primary).WithBackend("secondary", secondary)
	AssertNoError(t, o.Initialize(), "Initialize")
	defer o.Close()

	result, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Route to the session default"))
	AssertNoError(t, err, "unpinned task")
	AssertEqual(t, "secondary", result.BackendUsed, "configured default")
	AssertEqual(t, 1, secondary.Calls(), "secondary calls")
	AssertEqual(t, 0, primary.Calls(), "primary calls")

	result, err = o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Pin to the primary").WithBackend("primary"))
	AssertNoError(t, err, "pinned task")
	AssertEqual(t, "primary", result.BackendUsed, "pinned backend")
	AssertEqual(t, 1, primary.Calls(), "primary calls after pin")
}

func TestFirstBackendFallback(t *testing.T) {
	primary := NewMockBackend("primary")
	secondary := NewMockBackend("secondary")
	cfg := &Config{Swarm: SwarmConfig{
		MaxConcurrent:    2,
		QualityThreshold: 0.8,
		LearningRate:     0.2,
		CacheSize:        8,
		CacheTTLSeconds:  60,
	}}
	o := New(cfg).WithBackend("primary", primary).WithBackend("secondary", secondary)
	AssertNoError(t, o.Initialize(), "Initialize")
	defer o.Close()

	// No default configured: the first identifier in sorted order serves.
	result, err := o.ExecuteTask(context.Background(), NewTask(KindGeneral, "Fall back to the first backend"))
	AssertNoError(t, err, "ExecuteTask")
	AssertEqual(t, "primary", result.BackendUsed, "sorted-order fallback")
}

func TestNewDefault(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")

		o, err := NewDefault()
		AssertNoError(t, err, "NewDefault")
		AssertErrorIs(t, o.Initialize(), ErrMissingAPIKey, "Initialize without key")
	})

	t.Run("environment key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-unit")

		o, err := NewDefault()
		AssertNoError(t, err, "NewDefault")
		AssertNoError(t, o.Initialize(), "Initialize with key")
		defer o.Close()

		if !reflect.DeepEqual([]string{"openai"}, o.Stats().Backends) {
			t.Errorf("Expected backends [openai], got %v", o.Stats().Backends)
		}
	})
}
