package swarm

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Orchestrator coordinates automated generation tasks across the registered
// backends. It owns the strategy selector, the verification loop, the
// bounded-concurrency admission gate and the per-session statistics.
//
// Construct one with New, adjust it with the With* methods, then call
// Initialize before submitting tasks. All methods are safe for concurrent
// use after initialization.
type Orchestrator struct {
	config   *Config
	catalog  *Catalog
	metrics  *Metrics
	retry    *RetryPolicy
	prebuilt map[string]Backend

	sessionID string

	mu          sync.Mutex
	initialized bool
	registry    *registry
	stats       *Aggregator
	engine      *engine
	archive     *Archive
	feed        *eventFeed
	perf        *perfMonitor
	sem         *semaphore.Weighted
}

// New creates an orchestrator with the provided configuration. A nil config
// selects the defaults; zero values in a hand-built config are filled in.
// The orchestrator is not usable until Initialize.
func New(cfg *Config) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyConfigDefaults(cfg)
	return &Orchestrator{
		config:    cfg,
		catalog:   DefaultCatalog(),
		retry:     DefaultRetryPolicy(),
		sessionID: uuid.NewString(),
	}
}

// NewDefault creates an orchestrator from the environment alone, using
// SWARM_-prefixed variables and OPENAI_API_KEY. Returns an error when the
// resulting configuration is invalid.
func NewDefault() (*Orchestrator, error) {
	cfg, err := LoadConfig("")
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// WithCatalog replaces the strategy catalog and returns the orchestrator for
// chaining. Must be called before Initialize.
func (o *Orchestrator) WithCatalog(catalog *Catalog) *Orchestrator {
	if catalog != nil {
		o.catalog = catalog
	}
	return o
}

// WithMetrics attaches Prometheus collectors and returns the orchestrator
// for chaining. Must be called before Initialize.
func (o *Orchestrator) WithMetrics(metrics *Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// WithRetryPolicy replaces the backoff policy between attempts and returns
// the orchestrator for chaining. Must be called before Initialize.
func (o *Orchestrator) WithRetryPolicy(policy *RetryPolicy) *Orchestrator {
	if policy != nil {
		o.retry = policy
	}
	return o
}

// WithBackend registers a pre-built backend instance under the given
// identifier and returns the orchestrator for chaining. Must be called
// before Initialize. The instance shadows any configured backend with the
// same identifier.
func (o *Orchestrator) WithBackend(identifier string, backend Backend) *Orchestrator {
	if o.prebuilt == nil {
		o.prebuilt = make(map[string]Backend)
	}
	o.prebuilt[identifier] = backend
	return o
}

// SessionID returns the identifier stamped on this orchestrator's archive
// records and statistics.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Catalog returns the strategy catalog in use.
func (o *Orchestrator) Catalog() *Catalog {
	return o.catalog
}

// Initialize builds the backend registry and the execution engine. It must
// be called exactly once: a second call returns ErrAlreadyInitialized, and
// every execution method fails with ErrNotInitialized before the first.
func (o *Orchestrator) Initialize() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return ErrAlreadyInitialized
	}

	reg, err := newRegistry(o.config.Backends, o.prebuilt)
	if err != nil {
		return err
	}

	stats := NewAggregator(o.config.Swarm.LearningRate, o.config.Swarm.EnableLearning)
	selector, err := NewSelector(o.catalog, stats)
	if err != nil {
		return err
	}

	if o.config.Swarm.ArchivePath != "" {
		archive, err := OpenArchive(o.config.Swarm.ArchivePath, o.sessionID)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		o.archive = archive
	}

	o.registry = reg
	o.stats = stats
	o.feed = newEventFeed()
	o.perf = newPerfMonitor()
	o.sem = semaphore.NewWeighted(int64(o.config.Swarm.MaxConcurrent))
	o.engine = &engine{
		registry:       reg,
		selector:       selector,
		verifier:       NewVerifier(o.config.Swarm.QualityThreshold),
		stats:          stats,
		cache:          newResultCache(o.config.Swarm.CacheSize, o.config.CacheTTL()),
		feed:           o.feed,
		metrics:        o.metrics,
		perf:           o.perf,
		retry:          o.retry,
		defaultBackend: o.config.Swarm.DefaultBackend,
		debug:          o.config.Swarm.Debug,
	}
	o.initialized = true

	DebugPrint(o.config.Swarm.Debug, "orchestrator initialized: session ", o.sessionID,
		", backends ", fmt.Sprint(reg.ids()), ", max concurrent ", o.config.Swarm.MaxConcurrent)
	return nil
}

// components returns the execution dependencies, failing before Initialize.
func (o *Orchestrator) components() (*engine, *semaphore.Weighted, *Archive, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil, nil, nil, ErrNotInitialized
	}
	return o.engine, o.sem, o.archive, nil
}

// ExecuteTask drives one task to a terminal status.
//
// The returned error reports misuse only: an uninitialized orchestrator or a
// nil task. Every task-level outcome, including exhausted attempts and
// cancellation, is reported through the TaskResult.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task *Task) (*TaskResult, error) {
	eng, sem, archive, err := o.components()
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task cannot be nil")
	}

	// Admission gate: wait for a free slot. A context that ends here cancels
	// the task before it consumed any backend capacity.
	if err := sem.Acquire(ctx, 1); err != nil {
		return o.cancelBeforeAdmission(task, err), nil
	}
	defer sem.Release(1)

	o.stats.taskStarted()
	o.metrics.IncActiveTasks()
	defer func() {
		o.stats.taskFinished()
		o.metrics.DecActiveTasks()
	}()

	result := eng.run(ctx, task)

	if archive != nil {
		if err := archive.Save(task, result); err != nil {
			DebugPrint(o.config.Swarm.Debug, "archive save failed for task ", task.ID, ": ", err.Error())
		}
	}
	return result, nil
}

// cancelBeforeAdmission marks a task that never got a slot as cancelled.
func (o *Orchestrator) cancelBeforeAdmission(task *Task, cause error) *TaskResult {
	if err := task.transition(StatusCancelled); err == nil {
		o.feed.publish(TaskEvent{
			Type:    EventTerminal,
			TaskID:  task.ID,
			Status:  StatusCancelled,
			Message: cause.Error(),
		})
	}
	o.stats.RecordCancelled()
	return &TaskResult{
		TaskID:  task.ID,
		Status:  StatusCancelled,
		History: task.History,
		Error:   cause.Error(),
	}
}

// ExecuteTasks runs a batch concurrently, bounded by the configured
// concurrency limit. Results are returned in input order; a nil error means
// every task reached a terminal status, successful or not.
func (o *Orchestrator) ExecuteTasks(ctx context.Context, tasks []*Task) ([]*TaskResult, error) {
	if _, _, _, err := o.components(); err != nil {
		return nil, err
	}

	results := make([]*TaskResult, len(tasks))
	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			result, err := o.ExecuteTask(ctx, task)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Stats returns a snapshot of the session counters and learned strategy
// weights.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	stats, reg, eng := o.stats, o.registry, o.engine
	o.mu.Unlock()

	var snapshot Stats
	if stats != nil {
		snapshot = stats.Snapshot()
	}
	snapshot.SessionID = o.sessionID
	if reg != nil {
		snapshot.Backends = reg.ids()
	}
	if eng != nil {
		snapshot.CacheHits, snapshot.CacheMisses = eng.cache.counters()
	}
	return snapshot
}

// HealthCheck probes every registered backend and reports readiness per
// backend identifier.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[string]bool {
	o.mu.Lock()
	reg := o.registry
	o.mu.Unlock()
	if reg == nil {
		return nil
	}

	health := make(map[string]bool, len(reg.ids()))
	for _, id := range reg.ids() {
		backend, ok := reg.get(id)
		if !ok {
			health[id] = false
			continue
		}
		health[id] = backend.HealthCheck(ctx)
	}
	return health
}

// Events returns the task event feed. Events are dropped, never blocked on,
// when the consumer falls behind.
func (o *Orchestrator) Events() <-chan TaskEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.feed == nil {
		return nil
	}
	return o.feed.events()
}

// PerformanceReport summarizes the recent task window.
func (o *Orchestrator) PerformanceReport() PerformanceReport {
	o.mu.Lock()
	perf := o.perf
	o.mu.Unlock()
	return perf.report()
}

// Close releases the event feed and the archive. The orchestrator must not
// be used afterwards.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}
	o.initialized = false
	o.feed.close()
	if o.archive != nil {
		return o.archive.Close()
	}
	return nil
}
