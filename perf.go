package swarm

import (
	"fmt"
	"sync"
	"time"
)

const (
	// perfWindowSize bounds the sample history so the monitor never grows
	// with task volume.
	perfWindowSize = 100
	// slowTaskThreshold flags tasks whose end-to-end duration suggests the
	// backend or the retry loop is struggling.
	slowTaskThreshold = 5 * time.Second
	// errorRateThreshold is the failure fraction above which the report
	// raises an alert.
	errorRateThreshold = 0.05
)

// perfSample captures one finished task for trend analysis.
type perfSample struct {
	duration time.Duration
	success  bool
	cached   bool
}

// perfMonitor keeps a fixed-size ring of recent task samples and derives
// alerts and tuning recommendations from them.
type perfMonitor struct {
	mu     sync.Mutex
	window [perfWindowSize]perfSample
	next   int
	filled bool
}

func newPerfMonitor() *perfMonitor {
	return &perfMonitor{}
}

// observe records one finished task, evicting the oldest sample once the
// window is full.
func (p *perfMonitor) observe(sample perfSample) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window[p.next] = sample
	p.next++
	if p.next == perfWindowSize {
		p.next = 0
		p.filled = true
	}
}

// PerformanceReport summarizes the recent task window with any threshold
// violations and tuning suggestions.
type PerformanceReport struct {
	// Samples is the number of tasks the report covers.
	Samples int `json:"samples"`
	// AverageDuration is the mean end-to-end task duration.
	AverageDuration time.Duration `json:"average_duration"`
	// SlowestDuration is the worst task duration in the window.
	SlowestDuration time.Duration `json:"slowest_duration"`
	// ErrorRate is the fraction of tasks that did not succeed.
	ErrorRate float64 `json:"error_rate"`
	// CacheHitRate is the fraction of tasks served from the result cache.
	CacheHitRate float64 `json:"cache_hit_rate"`
	// Alerts lists threshold violations observed in the window.
	Alerts []string `json:"alerts,omitempty"`
	// Recommendations lists tuning suggestions derived from the window.
	Recommendations []string `json:"recommendations,omitempty"`
}

// report computes the current window summary.
func (p *perfMonitor) report() PerformanceReport {
	if p == nil {
		return PerformanceReport{}
	}
	p.mu.Lock()
	count := p.next
	if p.filled {
		count = perfWindowSize
	}
	samples := make([]perfSample, count)
	copy(samples, p.window[:count])
	p.mu.Unlock()

	report := PerformanceReport{Samples: count}
	if count == 0 {
		return report
	}

	var total time.Duration
	var failures, cached, slow int
	for _, s := range samples {
		total += s.duration
		if s.duration > report.SlowestDuration {
			report.SlowestDuration = s.duration
		}
		if s.duration > slowTaskThreshold {
			slow++
		}
		if !s.success {
			failures++
		}
		if s.cached {
			cached++
		}
	}
	report.AverageDuration = total / time.Duration(count)
	report.ErrorRate = float64(failures) / float64(count)
	report.CacheHitRate = float64(cached) / float64(count)

	if report.ErrorRate > errorRateThreshold {
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("error rate %.1f%% exceeds %.1f%% threshold", report.ErrorRate*100, errorRateThreshold*100))
		report.Recommendations = append(report.Recommendations,
			"check backend health and consider raising per-attempt timeouts")
	}
	if report.AverageDuration > slowTaskThreshold {
		report.Alerts = append(report.Alerts,
			fmt.Sprintf("average task duration %s exceeds %s threshold", report.AverageDuration.Round(time.Millisecond), slowTaskThreshold))
	}
	if slow > 0 && report.CacheHitRate < 0.5 {
		report.Recommendations = append(report.Recommendations,
			fmt.Sprintf("%d slow tasks in window; enable or enlarge the result cache to absorb repeated prompts", slow))
	}
	return report
}
