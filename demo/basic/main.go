package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hivekit/swarm-go"
)

func main() {
	// A scripted mock backend keeps the demo runnable without credentials.
	backend := swarm.NewMockBackend("mock")

	orchestrator := swarm.New(&swarm.Config{
		Swarm: swarm.SwarmConfig{
			MaxConcurrent:  2,
			DefaultBackend: "mock",
			EnableLearning: true,
			Debug:          true,
		},
	}).WithBackend("mock", backend)

	if err := orchestrator.Initialize(); err != nil {
		fmt.Printf("Failed to initialize orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	task := swarm.NewCodeTask("Write a Go function that reverses a slice of strings")
	result, err := orchestrator.ExecuteTask(context.Background(), task)
	if err != nil {
		fmt.Printf("Failed to execute task: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status: %s after %d attempt(s), quality %.2f, strategy %s\n",
		result.Status, result.Attempts, result.Quality, result.StrategyUsed)
	fmt.Println(result.Artifact)
}
