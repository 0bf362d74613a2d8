package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hivekit/swarm-go"
)

func main() {
	// Latency on the mock backend makes the concurrency limit observable.
	backend := swarm.NewMockBackend("mock").WithLatency(200 * time.Millisecond)

	orchestrator := swarm.New(&swarm.Config{
		Swarm: swarm.SwarmConfig{
			MaxConcurrent:  3,
			DefaultBackend: "mock",
			EnableLearning: true,
		},
	}).WithBackend("mock", backend)

	if err := orchestrator.Initialize(); err != nil {
		fmt.Printf("Failed to initialize orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	tasks := []*swarm.Task{
		swarm.NewCodeTask("Write a Go function that merges two sorted slices"),
		swarm.NewForecastTask("Forecast monthly sales for the next quarter from this trend"),
		swarm.NewTask(swarm.KindClassification, "Classify these support tickets by urgency"),
		swarm.NewTask(swarm.KindGeneral, "Summarize the trade-offs between polling and webhooks"),
		swarm.NewCodeTask("Write a Go function that deduplicates a slice of ints"),
		swarm.NewForecastTask("Predict demand for the coming six weeks from the series"),
	}

	start := time.Now()
	results, err := orchestrator.ExecuteTasks(context.Background(), tasks)
	if err != nil {
		fmt.Printf("Failed to execute tasks: %v\n", err)
		os.Exit(1)
	}

	for _, result := range results {
		fmt.Printf("%-10s %-18s attempts=%d quality=%.2f\n",
			result.Status, result.StrategyUsed, result.Attempts, result.Quality)
	}
	fmt.Printf("%d tasks in %s with %d generate calls, peak concurrency %d\n",
		len(results), time.Since(start).Round(time.Millisecond), backend.Calls(), backend.MaxInFlight())

	stats := orchestrator.Stats()
	fmt.Printf("Session %s: %d/%d succeeded, success rate %.0f%%\n",
		stats.SessionID, stats.SucceededTasks, stats.TotalTasks, stats.SuccessRate*100)

	report := orchestrator.PerformanceReport()
	fmt.Printf("Average duration %s over %d samples\n", report.AverageDuration.Round(time.Millisecond), report.Samples)
}
