package swarm

import (
	"context"
	"fmt"
	"time"
)

// defaultSystemPrompt seeds requests whose strategy carries no prompt hint.
const defaultSystemPrompt = "You are a precise automated generation agent. Respond with the artifact only."

// RetryPolicy configures the pause between attempts using exponential backoff.
type RetryPolicy struct {
	// InitialInterval is the delay before the second attempt
	InitialInterval time.Duration

	// MaxInterval caps the maximum delay between attempts
	MaxInterval time.Duration

	// Multiplier controls exponential backoff rate
	Multiplier float64
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}
}

// interval returns the backoff pause after the given attempt number.
func (p *RetryPolicy) interval(attempt int) time.Duration {
	if p == nil || p.InitialInterval <= 0 {
		return 0
	}
	interval := float64(p.InitialInterval)
	for i := 1; i < attempt; i++ {
		interval *= p.Multiplier
	}
	if p.MaxInterval > 0 && interval > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(interval)
}

// engine drives a single task through its lifecycle: analyze and design the
// request, then run generate+verify cycles until an artifact is accepted,
// attempts run out, or the context aborts the task. The engine owns every
// status transition; callers only see the final TaskResult.
type engine struct {
	registry       *registry
	selector       *Selector
	verifier       *Verifier
	stats          *Aggregator
	cache          *resultCache
	feed           *eventFeed
	metrics        *Metrics
	perf           *perfMonitor
	retry          *RetryPolicy
	defaultBackend string
	debug          bool
}

// run executes the task to a terminal status. Task-level failures are
// reported through the result, never as an error.
func (e *engine) run(ctx context.Context, task *Task) *TaskResult {
	start := time.Now()
	result := &TaskResult{TaskID: task.ID}

	// Analyzing: validate the task and resolve its backend.
	e.advance(task, StatusAnalyzing)
	if err := task.Validate(); err != nil {
		result.Error = err.Error()
		e.advance(task, StatusFailed)
		return e.finish(task, result, start, false)
	}
	backendID, backend, ok := e.resolveBackend(task)
	if !ok {
		result.Error = fmt.Sprintf("%s: %q", ErrBackendNotFound, task.Backend)
		e.advance(task, StatusFailed)
		return e.finish(task, result, start, false)
	}
	complexity, recommended := AnalyzeComplexity(task)
	DebugPrint(e.debug, "task ", task.ID, ": complexity ", string(complexity), ", suggested model ", recommended)

	// Designing: pick the strategy and assemble the request.
	e.advance(task, StatusDesigning)
	spec, ranked := e.selector.Select(task)
	task.Strategy = spec.Tag
	result.StrategyUsed = spec.Tag
	result.BackendUsed = backendID
	DebugPrint(e.debug, "task ", task.ID, ": strategy ", string(spec.Tag), " chosen from ", len(ranked), " candidates")

	system := spec.PromptHint
	if system == "" {
		system = defaultSystemPrompt
	}
	req := &Request{
		TaskID:    task.ID,
		Kind:      task.Kind,
		System:    system,
		Prompt:    task.Description,
		MaxTokens: task.MaxTokens,
	}

	// A fresh cache hit replays the stored artifact as a completed attempt.
	// The entry must clear this task's own bar, so a stricter resubmission
	// regenerates instead of inheriting a weaker acceptance.
	key := cacheKey(task.Kind, task.Description, backendID)
	if entry, hit := e.cache.get(key, e.verifier.threshold(task)); hit {
		e.advance(task, StatusExecuting)
		e.advance(task, StatusVerifying)
		task.recordAttempt(AttemptResult{
			Backend:   backendID,
			Artifact:  entry.artifact.Content,
			Quality:   entry.quality,
			Accepted:  true,
			Cached:    true,
			Timestamp: time.Now(),
		})
		e.publishAttempt(task, task.History[len(task.History)-1], "served from cache")
		e.advance(task, StatusSucceeded)
		e.stats.RecordOutcome(task.Strategy, true, entry.quality)
		result.Artifact = entry.artifact.Content
		result.Quality = entry.quality
		return e.finish(task, result, start, true)
	}

	cfg := e.registry.config(backendID)
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	model := cfg.Model
	var promptTokens, completionTokens int

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.advance(task, StatusExecuting)

		callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
		callStart := time.Now()
		artifact, err := backend.Generate(callCtx, req)
		cancel()
		callDuration := time.Since(callStart)
		promptTokens += countTokens(req.System) + countTokens(req.Prompt)

		// An aborted parent context ends the task no matter what the
		// generate call returned. Checked before error classification so an
		// external abort is never mistaken for a retryable timeout.
		if ctx.Err() != nil {
			task.recordAttempt(AttemptResult{
				Backend:   backendID,
				Failure:   &FailureReason{Class: FailureCancelled, Message: ctx.Err().Error()},
				Duration:  callDuration,
				Timestamp: time.Now(),
			})
			e.metrics.ObserveAttempt(backendID, string(FailureCancelled), callDuration)
			result.Cost = EstimateCost(model, promptTokens, completionTokens)
			return e.abort(task, result, start, ctx.Err())
		}

		if err != nil {
			class := classifyFailure(err)
			task.recordAttempt(AttemptResult{
				Backend:   backendID,
				Failure:   &FailureReason{Class: class, Message: err.Error()},
				Duration:  callDuration,
				Timestamp: time.Now(),
			})
			e.publishAttempt(task, task.History[len(task.History)-1], err.Error())
			e.metrics.ObserveAttempt(backendID, string(class), callDuration)
			DebugPrint(e.debug, "task ", task.ID, ": attempt ", attempt, " failed: ", err.Error())
			if attempt == maxAttempts {
				result.Error = err.Error()
				result.Cost = EstimateCost(model, promptTokens, completionTokens)
				e.advance(task, StatusFailed)
				e.stats.RecordOutcome(task.Strategy, false, 0)
				return e.finish(task, result, start, false)
			}
			e.advance(task, StatusRefining)
			if pauseErr := e.pause(ctx, attempt); pauseErr != nil {
				result.Cost = EstimateCost(model, promptTokens, completionTokens)
				return e.abort(task, result, start, pauseErr)
			}
			continue
		}

		if artifact.Tokens > 0 {
			completionTokens += artifact.Tokens
		} else {
			completionTokens += countTokens(artifact.Content)
		}
		if artifact.Model != "" {
			model = artifact.Model
		}
		e.metrics.ObserveAttempt(backendID, "ok", callDuration)

		e.advance(task, StatusVerifying)
		verification := e.verifier.Verify(task, artifact)
		e.metrics.ObserveQuality(verification.Quality)
		task.recordAttempt(AttemptResult{
			Backend:   backendID,
			Artifact:  artifact.Content,
			Quality:   verification.Quality,
			Accepted:  verification.Accepted,
			Duration:  callDuration,
			Timestamp: time.Now(),
		})
		e.publishAttempt(task, task.History[len(task.History)-1], verification.Reason)

		if verification.Accepted {
			e.advance(task, StatusSucceeded)
			e.stats.RecordOutcome(task.Strategy, true, verification.Quality)
			e.cache.put(key, cachedResult{
				artifact: *artifact,
				quality:  verification.Quality,
				strategy: task.Strategy,
				backend:  backendID,
			})
			result.Artifact = artifact.Content
			result.Quality = verification.Quality
			result.Cost = EstimateCost(model, promptTokens, completionTokens)
			return e.finish(task, result, start, false)
		}

		DebugPrint(e.debug, "task ", task.ID, ": attempt ", attempt, " rejected: ", verification.Reason)
		if attempt == maxAttempts {
			result.Error = verification.Reason
			result.Quality = verification.Quality
			result.Cost = EstimateCost(model, promptTokens, completionTokens)
			e.advance(task, StatusFailed)
			e.stats.RecordOutcome(task.Strategy, false, 0)
			return e.finish(task, result, start, false)
		}
		e.advance(task, StatusRefining)
		req.refine(verification.Reason, attempt)
		if pauseErr := e.pause(ctx, attempt); pauseErr != nil {
			result.Cost = EstimateCost(model, promptTokens, completionTokens)
			return e.abort(task, result, start, pauseErr)
		}
	}

	// Unreachable: the final attempt always returns above.
	return e.finish(task, result, start, false)
}

// resolveBackend picks the backend for a task: its pinned identifier when
// set, otherwise the configured default, otherwise the first registered one.
// A pinned identifier that is not registered fails resolution instead of
// silently falling back.
func (e *engine) resolveBackend(task *Task) (string, Backend, bool) {
	if task.Backend != "" {
		b, ok := e.registry.get(task.Backend)
		return task.Backend, b, ok
	}
	if e.defaultBackend != "" {
		if b, ok := e.registry.get(e.defaultBackend); ok {
			return e.defaultBackend, b, true
		}
	}
	id := e.registry.first()
	b, ok := e.registry.get(id)
	return id, b, ok
}

// pause sleeps the backoff interval, returning early when the context ends.
func (e *engine) pause(ctx context.Context, attempt int) error {
	interval := e.retry.interval(attempt)
	if interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// advance moves the task to the next status and publishes the transition.
func (e *engine) advance(task *Task, to TaskStatus) {
	if err := task.transition(to); err != nil {
		DebugPrint(e.debug, "task ", task.ID, ": ", err.Error())
		return
	}
	e.feed.publish(TaskEvent{
		Type:     EventTransition,
		TaskID:   task.ID,
		Status:   to,
		Strategy: task.Strategy,
	})
}

// abort marks the task cancelled and closes out the result.
func (e *engine) abort(task *Task, result *TaskResult, start time.Time, cause error) *TaskResult {
	e.advance(task, StatusCancelled)
	e.stats.RecordCancelled()
	result.Error = cause.Error()
	return e.finish(task, result, start, false)
}

// finish stamps the shared result fields and emits the terminal event.
func (e *engine) finish(task *Task, result *TaskResult, start time.Time, cached bool) *TaskResult {
	result.Status = task.Status
	result.Success = task.Status == StatusSucceeded
	result.Attempts = task.Attempts
	result.History = task.History
	result.Duration = time.Since(start)
	e.feed.publish(TaskEvent{
		Type:     EventTerminal,
		TaskID:   task.ID,
		Status:   task.Status,
		Strategy: task.Strategy,
		Backend:  result.BackendUsed,
		Attempt:  task.Attempts,
		Quality:  result.Quality,
		Accepted: result.Success,
		Message:  result.Error,
	})
	e.metrics.ObserveTask(task.Status, task.Strategy, result.Duration)
	e.perf.observe(perfSample{duration: result.Duration, success: result.Success, cached: cached})
	return result
}

// publishAttempt emits one attempt event on the feed.
func (e *engine) publishAttempt(task *Task, attempt AttemptResult, message string) {
	e.feed.publish(TaskEvent{
		Type:     EventAttempt,
		TaskID:   task.ID,
		Status:   task.Status,
		Strategy: task.Strategy,
		Backend:  attempt.Backend,
		Attempt:  attempt.Attempt,
		Quality:  attempt.Quality,
		Accepted: attempt.Accepted,
		Message:  message,
	})
}
