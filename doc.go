// Package swarm coordinates automated code and content generation across
// pluggable LLM backends. It drives every submitted task through an explicit
// lifecycle and adapts its strategy selection to observed outcomes.
//
// The package supports:
//   - A task state machine from analysis through verification with a full audit trail
//   - Heuristic strategy selection with learned per-strategy weights
//   - Bounded concurrent execution with per-attempt timeouts and backoff
//   - Artifact verification with automatic refinement of rejected attempts
//   - OpenAI, Azure OpenAI and scriptable mock backends
//   - Result caching, cost estimation and a SQLite result archive
//   - Prometheus metrics and a non-blocking task event feed
//   - Sequential pipelines that feed one step's artifact into the next
//
// Key Components:
//   - Orchestrator: Owns backends, concurrency limits and session statistics
//   - Task: One unit of generation work with its lifecycle trace
//   - Catalog / Selector: Strategy specs and the scoring that ranks them
//   - Verifier: Judges artifacts against structural and confidence signals
//   - Backend: The provider interface; NewBackend builds instances from config
package swarm
