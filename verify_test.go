package swarm

import (
	"strings"
	"testing"
)

func TestStructuralScore(t *testing.T) {
	tests := []struct {
		name    string
		kind    TaskKind
		content string
		want    float64
	}{
		{name: "fenced code", kind: KindCodeGeneration, content: "```go\nfunc add(a, b int) int { return a + b }\n```", want: 1.0},
		{name: "bare code", kind: KindCodeGeneration, content: "func add(a, b int) int { return a + b }", want: 0.8},
		{name: "prose instead of code", kind: KindCodeGeneration, content: "I would suggest iterating over the slice", want: 0.3},
		{name: "forecast with numbers", kind: KindForecasting, content: "Expected growth of 12.5% next quarter", want: 1.0},
		{name: "forecast without numbers", kind: KindForecasting, content: "demand will probably rise", want: 0.3},
		{name: "general prose", kind: KindGeneral, content: "A short summary of the findings", want: 1.0},
		{name: "classification output", kind: KindClassification, content: "bug, high priority", want: 1.0},
		{name: "empty", kind: KindGeneral, content: "   ", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			AssertInDelta(t, tt.want, structuralScore(tt.kind, tt.content), 1e-9, "structural score")
		})
	}
}

func TestVerifyBlendsConfidence(t *testing.T) {
	verifier := NewVerifier(0.8)
	task := NewTask(KindGeneral, "Summarize the findings")

	verdict := verifier.Verify(task, &Artifact{Content: "The findings in short.", Confidence: 0.8, SelfAssessed: true})
	if !verdict.Accepted {
		t.Errorf("Expected acceptance, got rejection: %s", verdict.Reason)
	}
	AssertInDelta(t, 0.9, verdict.Quality, 1e-9, "blended quality")
	AssertEqual(t, "", verdict.Reason, "reason on acceptance")
}

func TestVerifyNeutralConfidence(t *testing.T) {
	verifier := NewVerifier(0.8)
	task := NewTask(KindGeneral, "Summarize the findings")

	// Without self-assessment the confidence half of the blend is neutral.
	verdict := verifier.Verify(task, &Artifact{Content: "The findings in short."})
	AssertInDelta(t, 0.75, verdict.Quality, 1e-9, "neutral quality")
	if verdict.Accepted {
		t.Error("Expected rejection below the threshold")
	}
	if !strings.Contains(verdict.Reason, "quality 0.75 below threshold 0.80") {
		t.Errorf("Expected threshold detail in reason, got %q", verdict.Reason)
	}
}

func TestVerifyTaskThresholdOverride(t *testing.T) {
	verifier := NewVerifier(0.8)
	task := NewTask(KindGeneral, "Summarize the findings").WithQualityThreshold(0.7)

	verdict := verifier.Verify(task, &Artifact{Content: "The findings in short."})
	if !verdict.Accepted {
		t.Errorf("Expected acceptance at the per-task threshold, got: %s", verdict.Reason)
	}
	AssertInDelta(t, 0.75, verdict.Quality, 1e-9, "quality under override")
}

func TestVerifyRefinementScores(t *testing.T) {
	verifier := NewVerifier(0.8)
	task := NewTask(KindGeneral, "Describe the rollout plan")

	confidences := []float64{0.0, 0.0, 0.8}
	expected := []float64{0.5, 0.5, 0.9}
	for i, confidence := range confidences {
		verdict := verifier.Verify(task, &Artifact{
			Content:      "Plan described in full.",
			Confidence:   confidence,
			SelfAssessed: true,
		})
		AssertInDelta(t, expected[i], verdict.Quality, 1e-9, "attempt quality")
		if accepted := expected[i] >= 0.8; verdict.Accepted != accepted {
			t.Errorf("Expected accepted=%v for quality %.2f", accepted, expected[i])
		}
	}
}

func TestVerifyRejectionHints(t *testing.T) {
	verifier := NewVerifier(0.9)

	code := verifier.Verify(NewTask(KindCodeGeneration, "Write a sorter"),
		&Artifact{Content: "Use the standard sort package", Confidence: 0.2, SelfAssessed: true})
	if !strings.Contains(code.Reason, "fenced code block") {
		t.Errorf("Expected code hint in reason, got %q", code.Reason)
	}

	forecast := verifier.Verify(NewTask(KindForecasting, "Project the demand"),
		&Artifact{Content: "it will grow", Confidence: 0.2, SelfAssessed: true})
	if !strings.Contains(forecast.Reason, "numeric projections") {
		t.Errorf("Expected forecast hint in reason, got %q", forecast.Reason)
	}

	empty := verifier.Verify(NewTask(KindGeneral, "Say something"),
		&Artifact{Content: "", Confidence: 0.9, SelfAssessed: true})
	if !strings.Contains(empty.Reason, "the response was empty") {
		t.Errorf("Expected empty hint in reason, got %q", empty.Reason)
	}
}

func TestVerifyClampsConfidence(t *testing.T) {
	verifier := NewVerifier(0.8)
	task := NewTask(KindGeneral, "Summarize the findings")

	high := verifier.Verify(task, &Artifact{Content: "Short and sweet.", Confidence: 1.7, SelfAssessed: true})
	AssertInDelta(t, 1.0, high.Quality, 1e-9, "clamped high confidence")

	low := verifier.Verify(task, &Artifact{Content: "Short and sweet.", Confidence: -0.4, SelfAssessed: true})
	AssertInDelta(t, 0.5, low.Quality, 1e-9, "clamped low confidence")
}

func TestVerifyWeightNormalization(t *testing.T) {
	verifier := &Verifier{Threshold: 0.8, StructuralWeight: 3, ConfidenceWeight: 1}
	task := NewTask(KindGeneral, "Summarize the findings")

	// Weights 3:1 over structural 1.0 and confidence 0.
	verdict := verifier.Verify(task, &Artifact{Content: "Done.", Confidence: 0, SelfAssessed: true})
	AssertInDelta(t, 0.75, verdict.Quality, 1e-9, "normalized blend")

	// Degenerate weights fall back to the even split.
	degenerate := &Verifier{Threshold: 0.8}
	verdict = degenerate.Verify(task, &Artifact{Content: "Done.", Confidence: 1.0, SelfAssessed: true})
	AssertInDelta(t, 1.0, verdict.Quality, 1e-9, "fallback blend")
}
