package swarm

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// StrategyTag names one generation specialization.
type StrategyTag string

const (
	// StrategySequence models ordered data such as sensor streams
	StrategySequence StrategyTag = "sequence-model"
	// StrategyForecasting projects future values from historical signals
	StrategyForecasting StrategyTag = "forecasting-model"
	// StrategyLanguage produces code and prose
	StrategyLanguage StrategyTag = "language-model"
	// StrategyGeneral is the catch-all specialization
	StrategyGeneral StrategyTag = "general-model"
)

// affinityFallback keeps unmatched strategies in contention so no
// specialization is ever fully excluded from selection.
const affinityFallback = 0.5

// StrategySpec describes one specialization: a static capability score and
// the affinities used to match it against tasks. Catalog entries are
// immutable after load; only the learned weight maintained by the stats
// aggregator changes at runtime.
type StrategySpec struct {
	// Tag names the specialization
	Tag StrategyTag `yaml:"tag"`
	// Description is a human-readable summary
	Description string `yaml:"description,omitempty"`
	// BaseScore is the static capability score in [0,1]
	BaseScore float64 `yaml:"base_score"`
	// Keywords match against task descriptions, case-insensitive substring
	Keywords []string `yaml:"keywords,omitempty"`
	// Kinds are task kinds this specialization is built for
	Kinds []TaskKind `yaml:"kinds,omitempty"`
	// PromptHint seeds the system message for requests using this strategy
	PromptHint string `yaml:"prompt_hint,omitempty"`
}

// Catalog is an ordered set of strategy specs. Declaration order is the
// selection tie-breaker, so the specs live in a slice, never a map.
type Catalog struct {
	specs []StrategySpec
}

// NewCatalog builds a catalog from the given specs in declaration order.
func NewCatalog(specs ...StrategySpec) (*Catalog, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyCatalog
	}
	for i, spec := range specs {
		if spec.Tag == "" {
			return nil, fmt.Errorf("catalog entry %d: tag is required", i)
		}
		if spec.BaseScore < 0 || spec.BaseScore > 1 {
			return nil, fmt.Errorf("catalog entry %s: base_score %v outside [0,1]", spec.Tag, spec.BaseScore)
		}
	}
	out := make([]StrategySpec, len(specs))
	copy(out, specs)
	return &Catalog{specs: out}, nil
}

// DefaultCatalog returns the built-in specialization catalog.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(
		StrategySpec{
			Tag:         StrategySequence,
			Description: "Sequential pattern modeling for ordered data",
			BaseScore:   0.85,
			Keywords:    []string{"serie", "series", "sequence", "secuencia", "temporal", "sensor"},
			PromptHint:  "You model ordered data. Describe the sequential patterns you rely on and keep the output structured.",
		},
		StrategySpec{
			Tag:         StrategyForecasting,
			Description: "Projection of future values from historical signals",
			BaseScore:   0.92,
			Keywords:    []string{"predecir", "predicción", "forecast", "pronóstico", "demanda", "tendencia"},
			Kinds:       []TaskKind{KindForecasting},
			PromptHint:  "You produce forecasts. Always include concrete numeric projections with their periods.",
		},
		StrategySpec{
			Tag:         StrategyLanguage,
			Description: "Code and prose generation",
			BaseScore:   0.88,
			Keywords:    []string{"código", "code", "texto", "text", "escribir", "write", "documenta", "function"},
			Kinds:       []TaskKind{KindCodeGeneration},
			PromptHint:  "You write precise code and prose. For code, respond with a complete fenced code block.",
		},
		StrategySpec{
			Tag:         StrategyGeneral,
			Description: "General-purpose generation",
			BaseScore:   0.75,
			Keywords:    []string{"clasificar", "classify", "analizar", "analyze"},
			Kinds:       []TaskKind{KindClassification, KindGeneral},
			PromptHint:  "You are a careful general-purpose assistant. Answer completely and concretely.",
		},
	)
	if err != nil {
		panic(err)
	}
	return catalog
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var specs []StrategySpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return NewCatalog(specs...)
}

// Save persists the catalog to a YAML file.
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c.specs)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write catalog file: %w", err)
	}

	return nil
}

// Specs returns a copy of the catalog entries in declaration order.
func (c *Catalog) Specs() []StrategySpec {
	out := make([]StrategySpec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.specs)
}

// find returns the first spec with the given tag.
func (c *Catalog) find(tag StrategyTag) (StrategySpec, bool) {
	for _, spec := range c.specs {
		if spec.Tag == tag {
			return spec, true
		}
	}
	return StrategySpec{}, false
}

// RankedStrategy pairs a spec with its computed selection score.
type RankedStrategy struct {
	Spec  StrategySpec
	Score float64
}

// Selector ranks catalog strategies for tasks. Selection is a pure function
// of the catalog and the stats-derived learned weights; it mutates nothing.
type Selector struct {
	catalog *Catalog
	stats   *Aggregator
}

// NewSelector creates a selector over a non-empty catalog. The aggregator
// supplies learned weights and may be nil, in which case every weight is 1.
func NewSelector(catalog *Catalog, stats *Aggregator) (*Selector, error) {
	if catalog == nil || catalog.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	return &Selector{catalog: catalog, stats: stats}, nil
}

// Select returns the winning strategy for the task plus the full ranked
// shortlist. Ties keep catalog declaration order.
func (s *Selector) Select(task *Task) (StrategySpec, []RankedStrategy) {
	ranked := make([]RankedStrategy, 0, s.catalog.Len())
	for _, spec := range s.catalog.specs {
		ranked = append(ranked, RankedStrategy{Spec: spec, Score: s.score(spec, task)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked[0].Spec, ranked
}

func (s *Selector) score(spec StrategySpec, task *Task) float64 {
	weight := 1.0
	if s.stats != nil {
		weight = s.stats.LearnedWeight(spec.Tag)
	}
	return spec.BaseScore * weight * affinity(spec, task)
}

// affinity is 1.0 when any keyword appears in the description or the task
// kind is listed, else the fixed fallback.
func affinity(spec StrategySpec, task *Task) float64 {
	desc := strings.ToLower(task.Description)
	for _, keyword := range spec.Keywords {
		if keyword != "" && strings.Contains(desc, strings.ToLower(keyword)) {
			return 1.0
		}
	}
	for _, kind := range spec.Kinds {
		if kind == task.Kind {
			return 1.0
		}
	}
	return affinityFallback
}
