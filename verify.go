package swarm

import (
	"fmt"
	"strings"
	"unicode"
)

// Verification is the verdict for one artifact.
type Verification struct {
	// Accepted is true iff Quality meets the acceptance threshold
	Accepted bool
	// Quality is the combined score in [0,1]
	Quality float64
	// Reason explains a rejection; empty when accepted
	Reason string
}

// Verifier scores artifacts against task acceptance criteria. Quality is a
// weighted blend of a kind-specific structural check and the backend's
// self-reported confidence (a neutral 0.5 when the artifact is not
// self-assessed). Verify is idempotent and touches no shared state, so it
// can run any number of times per task without distorting stats.
type Verifier struct {
	// Threshold is the global acceptance bar in [0,1]
	Threshold float64
	// StructuralWeight and ConfidenceWeight shape the blend; they are
	// normalized, so only their ratio matters
	StructuralWeight float64
	ConfidenceWeight float64
}

// NewVerifier creates a verifier with an even structural/confidence blend.
func NewVerifier(threshold float64) *Verifier {
	return &Verifier{
		Threshold:        threshold,
		StructuralWeight: 0.5,
		ConfidenceWeight: 0.5,
	}
}

// threshold returns the acceptance bar for a task: its own override when
// set, otherwise the global one.
func (v *Verifier) threshold(task *Task) float64 {
	if task.QualityThreshold > 0 {
		return task.QualityThreshold
	}
	return v.Threshold
}

// Verify judges one artifact for one task.
func (v *Verifier) Verify(task *Task, artifact *Artifact) Verification {
	threshold := v.threshold(task)

	structural := structuralScore(task.Kind, artifact.Content)
	confidence := 0.5
	if artifact.SelfAssessed {
		confidence = clamp01(artifact.Confidence)
	}

	sw, cw := v.StructuralWeight, v.ConfidenceWeight
	if sw+cw <= 0 {
		sw, cw = 0.5, 0.5
	}
	quality := clamp01((structural*sw + confidence*cw) / (sw + cw))

	if quality >= threshold {
		return Verification{Accepted: true, Quality: quality}
	}
	return Verification{
		Quality: quality,
		Reason:  rejectionReason(task.Kind, structural, quality, threshold),
	}
}

// structuralScore checks the artifact's shape for the task kind.
func structuralScore(kind TaskKind, content string) float64 {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return 0
	}

	switch kind {
	case KindCodeGeneration:
		if strings.Contains(trimmed, "```") {
			return 1.0
		}
		if looksLikeCode(trimmed) {
			return 0.8
		}
		return 0.3
	case KindForecasting:
		if containsDigit(trimmed) {
			return 1.0
		}
		return 0.3
	default:
		return 1.0
	}
}

func looksLikeCode(s string) bool {
	markers := []string{"func ", "def ", "class ", "return ", "import ", "{", "=>"}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// rejectionReason builds the corrective guidance folded into the next
// request, so it has to name something the backend can act on.
func rejectionReason(kind TaskKind, structural, quality, threshold float64) string {
	reason := fmt.Sprintf("quality %.2f below threshold %.2f", quality, threshold)
	switch {
	case kind == KindCodeGeneration && structural < 1.0:
		reason += "; respond with a complete fenced code block"
	case kind == KindForecasting && structural < 1.0:
		reason += "; include concrete numeric projections"
	case structural == 0:
		reason += "; the response was empty"
	}
	return reason
}
