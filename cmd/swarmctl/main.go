// Package main implements the swarmctl CLI for driving the swarm
// orchestrator: submitting tasks, running pipelines and inspecting the
// strategy catalog, backend health and archived results.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hivekit/swarm-go"
)

var (
	configPath string
	verbose    bool
	version    = "dev"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "swarmctl",
	Short: "Drive the swarm generation orchestrator",
	Long: `swarmctl submits generation tasks to the swarm orchestrator and inspects
its strategy catalog, backend health and archived results.

Configuration is read from the optional --config YAML file, then overridden
by SWARM_-prefixed environment variables and OPENAI_API_KEY.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(pipelineCmd)
}

var (
	runKind      string
	runBackend   string
	runThreshold float64
	runMaxTokens int
	runWait      time.Duration
)

// runCmd executes one task from the command line
var runCmd = &cobra.Command{
	Use:   "run [description...]",
	Short: "Execute one generation task",
	Long: `Execute one generation task and print its artifact.

Examples:
  # Generate code
  swarmctl run --kind code-generation "Write a Go function that reverses a string"

  # Forecast with a higher acceptance bar
  swarmctl run --kind forecasting --threshold 0.9 "Forecast Q3 demand from this series"

  # Pin the task to a configured backend
  swarmctl run --backend azure "Summarize the release notes"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

// statsCmd lists archived results
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archived task results",
	Long: `Show recently archived task results and their aggregate success rate.

Requires swarm.archive_path to be configured so runs persist across
processes.`,
	RunE: runStats,
}

// catalogCmd prints the strategy catalog
var catalogCmd = &cobra.Command{
	Use:   "catalog [file]",
	Short: "Show the strategy catalog",
	Long: `Show the built-in strategy catalog, or the one loaded from a YAML file.

Examples:
  swarmctl catalog
  swarmctl catalog strategies.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCatalog,
}

// healthCmd probes the configured backends
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured backend",
	RunE:  runHealth,
}

// selftestCmd exercises the execution loop on a scripted mock backend
var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run the execution loop against a scripted mock backend",
	Long: `Run refinement, failure and cache scenarios against a scripted mock
backend. No credentials are required; useful to validate an installation.`,
	RunE: runSelftest,
}

var pipelineWait time.Duration

// pipelineCmd runs a YAML pipeline
var pipelineCmd = &cobra.Command{
	Use:   "pipeline <file>",
	Short: "Run a YAML pipeline of dependent tasks",
	Long: `Run a pipeline where each step's artifact feeds the next step's prompt.

Example pipeline file:
  name: release-notes
  steps:
    - name: summarize
      kind: general
      description: Summarize the changes below
    - name: announce
      kind: general
      description: Write a short announcement from the summary`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVarP(&runKind, "kind", "k", string(swarm.KindGeneral), "task kind: code-generation, forecasting, classification or general")
	runCmd.Flags().StringVarP(&runBackend, "backend", "b", "", "pin the task to a backend identifier")
	runCmd.Flags().Float64VarP(&runThreshold, "threshold", "t", 0, "override the acceptance threshold (0 keeps the default)")
	runCmd.Flags().IntVar(&runMaxTokens, "max-tokens", 0, "cap the artifact size in tokens")
	runCmd.Flags().DurationVar(&runWait, "wait", 5*time.Minute, "overall deadline for the task")
	statsCmd.Flags().Int("limit", 20, "number of archived results to show")
	pipelineCmd.Flags().DurationVar(&pipelineWait, "wait", 15*time.Minute, "overall deadline for the pipeline")
}

// buildOrchestrator loads configuration and returns an initialized
// orchestrator. The caller must Close it.
func buildOrchestrator() (*swarm.Orchestrator, error) {
	cfg, err := swarm.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Swarm.Debug = true
	}
	orchestrator := swarm.New(cfg)
	if err := orchestrator.Initialize(); err != nil {
		return nil, err
	}
	return orchestrator, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, bounded by
// the given deadline.
func signalContext(wait time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if wait <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	return ctx, func() {
		cancel()
		stop()
	}
}

func parseKind(s string) (swarm.TaskKind, error) {
	switch swarm.TaskKind(s) {
	case swarm.KindCodeGeneration, swarm.KindForecasting, swarm.KindClassification, swarm.KindGeneral:
		return swarm.TaskKind(s), nil
	default:
		return "", fmt.Errorf("unknown kind %q (expected code-generation, forecasting, classification or general)", s)
	}
}

func statusString(status swarm.TaskStatus) string {
	switch status {
	case swarm.StatusSucceeded:
		return green(string(status))
	case swarm.StatusFailed:
		return red(string(status))
	case swarm.StatusCancelled:
		return yellow(string(status))
	default:
		return string(status)
	}
}

// runRun handles the run command
func runRun(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(runKind)
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	task := swarm.NewTask(kind, strings.Join(args, " "))
	if runBackend != "" {
		task.WithBackend(runBackend)
	}
	if runThreshold > 0 {
		task.WithQualityThreshold(runThreshold)
	}
	if runMaxTokens > 0 {
		task.WithMaxTokens(runMaxTokens)
	}

	ctx, cancel := signalContext(runWait)
	defer cancel()

	result, err := orchestrator.ExecuteTask(ctx, task)
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", bold("status:"), statusString(result.Status))
	fmt.Printf("%s %s via %s\n", bold("strategy:"), cyan(string(result.StrategyUsed)), result.BackendUsed)
	fmt.Printf("%s %.2f in %d attempt(s), %s\n", bold("quality:"), result.Quality, result.Attempts, result.Duration.Round(time.Millisecond))
	if result.Cost != nil {
		fmt.Printf("%s $%.6f (%d prompt + %d completion tokens)\n",
			bold("cost:"), result.Cost.TotalCost, result.Cost.PromptTokens, result.Cost.CompletionTokens)
	}
	if verbose {
		for _, attempt := range result.History {
			line := fmt.Sprintf("attempt %d [%s] quality=%.2f accepted=%t", attempt.Attempt, attempt.Backend, attempt.Quality, attempt.Accepted)
			if attempt.Failure != nil {
				line += " failure=" + attempt.Failure.String()
			}
			fmt.Println(gray(line))
		}
	}
	if result.Error != "" {
		fmt.Printf("%s %s\n", bold("error:"), red(result.Error))
	}
	if result.Artifact != "" {
		fmt.Println()
		fmt.Println(result.Artifact)
	}

	if !result.Success {
		return fmt.Errorf("task ended %s", result.Status)
	}
	return nil
}

// runStats handles the stats command
func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := swarm.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Swarm.ArchivePath == "" {
		return errors.New("no archive configured: set swarm.archive_path to persist results")
	}

	archive, err := swarm.OpenArchive(cfg.Swarm.ArchivePath, "")
	if err != nil {
		return err
	}
	defer archive.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	results, err := archive.Recent(limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no archived results")
		return nil
	}

	var succeeded int
	fmt.Printf("%s\n", bold(fmt.Sprintf("%-10s %-18s %-10s %-8s %-8s %s", "STATUS", "STRATEGY", "BACKEND", "QUALITY", "ATTEMPTS", "DESCRIPTION")))
	for _, res := range results {
		if res.Success {
			succeeded++
		}
		desc := res.Description
		if len(desc) > 48 {
			desc = desc[:45] + "..."
		}
		fmt.Printf("%-10s %-18s %-10s %-8.2f %-8d %s\n",
			statusString(res.Status), res.Strategy, res.Backend, res.Quality, res.Attempts, gray(desc))
	}
	fmt.Printf("\n%d results, %d succeeded (%.0f%%)\n", len(results), succeeded, float64(succeeded)/float64(len(results))*100)
	return nil
}

// runCatalog handles the catalog command
func runCatalog(cmd *cobra.Command, args []string) error {
	catalog := swarm.DefaultCatalog()
	if len(args) == 1 {
		loaded, err := swarm.LoadCatalog(args[0])
		if err != nil {
			return err
		}
		catalog = loaded
	}

	for _, spec := range catalog.Specs() {
		fmt.Printf("%s %s %s\n", bold(string(spec.Tag)), cyan(fmt.Sprintf("base=%.2f", spec.BaseScore)), gray(spec.Description))
		if len(spec.Keywords) > 0 {
			fmt.Printf("  keywords: %s\n", strings.Join(spec.Keywords, ", "))
		}
		if len(spec.Kinds) > 0 {
			kinds := make([]string, len(spec.Kinds))
			for i, kind := range spec.Kinds {
				kinds[i] = string(kind)
			}
			fmt.Printf("  kinds:    %s\n", strings.Join(kinds, ", "))
		}
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	orchestrator, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	health := orchestrator.HealthCheck(ctx)
	var unhealthy int
	for id, ok := range health {
		if ok {
			fmt.Printf("%-12s %s\n", id, green("ok"))
		} else {
			unhealthy++
			fmt.Printf("%-12s %s\n", id, red("unreachable"))
		}
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d backend(s) unreachable", unhealthy)
	}
	return nil
}

// runSelftest handles the selftest command
func runSelftest(cmd *cobra.Command, args []string) error {
	pass := func(name string) { fmt.Printf("%s %s\n", green("PASS"), name) }
	fail := func(name, detail string) { fmt.Printf("%s %s: %s\n", red("FAIL"), name, detail) }
	failures := 0

	// Scenario 1: two rejected attempts, then an accepted one.
	mock := swarm.NewMockBackend("mock").
		AddOutcome("draft", 0.0).
		AddOutcome("draft", 0.0).
		AddOutcome("```go\nfunc ok() {}\n```", 0.8)
	orchestrator := swarm.New(&swarm.Config{
		Swarm: swarm.SwarmConfig{DefaultBackend: "mock", EnableLearning: true, Debug: verbose},
	}).WithBackend("mock", mock).
		WithRetryPolicy(&swarm.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1})
	if err := orchestrator.Initialize(); err != nil {
		return err
	}
	defer orchestrator.Close()

	result, err := orchestrator.ExecuteTask(context.Background(), swarm.NewCodeTask("selftest refinement"))
	if err != nil {
		return err
	}
	if result.Success && result.Attempts == 3 {
		pass("refinement loop accepts the third attempt")
	} else {
		failures++
		fail("refinement loop", fmt.Sprintf("status=%s attempts=%d", result.Status, result.Attempts))
	}

	// Scenario 2: a backend that always errors exhausts its attempts.
	broken := swarm.NewMockBackend("broken").
		AddError(errors.New("boom"))
	orchestrator2 := swarm.New(&swarm.Config{
		Swarm: swarm.SwarmConfig{DefaultBackend: "broken", Debug: verbose},
	}).WithBackend("broken", broken).
		WithRetryPolicy(&swarm.RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, Multiplier: 1})
	if err := orchestrator2.Initialize(); err != nil {
		return err
	}
	defer orchestrator2.Close()

	result2, err := orchestrator2.ExecuteTask(context.Background(), swarm.NewTask(swarm.KindGeneral, "selftest failure"))
	if err != nil {
		return err
	}
	if !result2.Success && result2.Status == swarm.StatusFailed && len(result2.History) == result2.Attempts {
		pass("exhausted attempts end in failed with full history")
	} else {
		failures++
		fail("failure path", fmt.Sprintf("status=%s attempts=%d", result2.Status, result2.Attempts))
	}

	// Scenario 3: an identical resubmission is served from the cache.
	task := swarm.NewCodeTask("selftest cache")
	first, err := orchestrator.ExecuteTask(context.Background(), task)
	if err != nil {
		return err
	}
	resubmitted := swarm.NewCodeTask("selftest cache")
	second, err := orchestrator.ExecuteTask(context.Background(), resubmitted)
	if err != nil {
		return err
	}
	cached := first.Success && second.Success && len(second.History) == 1 && second.History[0].Cached
	if cached {
		pass("identical resubmission is served from the cache")
	} else {
		failures++
		fail("cache path", fmt.Sprintf("first=%s second=%s", first.Status, second.Status))
	}

	if failures > 0 {
		return fmt.Errorf("%d selftest scenario(s) failed", failures)
	}
	fmt.Println(bold("all selftest scenarios passed"))
	return nil
}

// runPipeline handles the pipeline command
func runPipeline(cmd *cobra.Command, args []string) error {
	pipeline, err := swarm.LoadPipeline(args[0])
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator()
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	ctx, cancel := signalContext(pipelineWait)
	defer cancel()

	result, runErr := pipeline.Run(ctx, orchestrator)
	for _, step := range result.Results {
		fmt.Printf("%s %s quality=%.2f attempts=%d\n",
			statusString(step.Result.Status), bold(step.StepName), step.Result.Quality, step.Result.Attempts)
	}
	if runErr != nil {
		return runErr
	}

	if len(result.Results) > 0 {
		fmt.Println()
		fmt.Println(result.Results[len(result.Results)-1].Result.Artifact)
	}
	return nil
}
