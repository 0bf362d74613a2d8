package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hivekit/swarm-go"
)

func main() {
	var orchestrator *swarm.Orchestrator
	if os.Getenv("OPENAI_API_KEY") != "" {
		var err error
		orchestrator, err = swarm.NewDefault()
		if err != nil {
			fmt.Printf("Failed to create orchestrator: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println("OPENAI_API_KEY not set, using the mock backend")
		orchestrator = swarm.New(nil).WithBackend("mock", swarm.NewMockBackend("mock"))
	}

	if err := orchestrator.Initialize(); err != nil {
		fmt.Printf("Failed to initialize orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	// A Spanish forecasting prompt routes to the forecasting strategy via
	// keyword affinity.
	task := swarm.NewForecastTask("Predecir la demanda de energía del próximo trimestre a partir de la serie histórica mensual")
	result, err := orchestrator.ExecuteTask(context.Background(), task)
	if err != nil {
		fmt.Printf("Failed to execute task: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Status:   %s\n", result.Status)
	fmt.Printf("Strategy: %s\n", result.StrategyUsed)
	fmt.Printf("Backend:  %s\n", result.BackendUsed)
	fmt.Printf("Quality:  %.2f in %d attempt(s)\n", result.Quality, result.Attempts)
	if result.Cost != nil {
		fmt.Printf("Cost:     $%.6f (%d prompt + %d completion tokens)\n",
			result.Cost.TotalCost, result.Cost.PromptTokens, result.Cost.CompletionTokens)
	}
	fmt.Println(result.Artifact)

	stats := orchestrator.Stats()
	for _, record := range stats.Strategies {
		fmt.Printf("Learned weight %s: %.3f\n", record.Tag, record.Weight)
	}
}
