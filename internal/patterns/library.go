// Package patterns loads and compiles the versioned detection rule set.
// The library is process-wide and read-only after initialization; loads are
// idempotent and cached per source for the process lifetime.
package patterns

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/andycungkrinx91/nginx-ai-security-suite/internal/domain"
)

//go:embed rules.yaml
var rulesYAML []byte

// Pattern is one compiled detection rule. Immutable once loaded.
type Pattern struct {
	ID       int
	Category domain.Category
	Rule     *regexp.Regexp
	Raw      string
	Sources  []domain.SourceFormat
}

type ruleFile struct {
	Version  int        `yaml:"version"`
	Patterns []ruleSpec `yaml:"patterns"`
}

type ruleSpec struct {
	ID       int      `yaml:"id"`
	Category string   `yaml:"category"`
	Rule     string   `yaml:"rule"`
	Sources  []string `yaml:"sources"`
}

var (
	mu    sync.Mutex
	cache = map[domain.SourceFormat][]Pattern{}
)

// Load returns the compiled pattern set for a source, ascending by id.
// Results are cached; callers must not mutate the returned slice.
func Load(source domain.SourceFormat) ([]Pattern, error) {
	mu.Lock()
	defer mu.Unlock()

	if pats, ok := cache[source]; ok {
		return pats, nil
	}
	pats, err := compile(rulesYAML, source)
	if err != nil {
		return nil, err
	}
	cache[source] = pats
	return pats, nil
}

func compile(raw []byte, source domain.SourceFormat) ([]Pattern, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedPattern, err)
	}

	var out []Pattern
	for _, spec := range rf.Patterns {
		if !appliesTo(spec.Sources, source) {
			continue
		}
		re, err := regexp.Compile(spec.Rule)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %v", domain.ErrMalformedPattern, spec.ID, err)
		}
		srcs := make([]domain.SourceFormat, 0, len(spec.Sources))
		for _, s := range spec.Sources {
			srcs = append(srcs, domain.SourceFormat(s))
		}
		out = append(out, Pattern{
			ID:       spec.ID,
			Category: domain.Category(spec.Category),
			Rule:     re,
			Raw:      spec.Rule,
			Sources:  srcs,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: source %s", domain.ErrEmptyLibrary, source)
	}

	// Stable evaluation order for deterministic scans.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func appliesTo(sources []string, want domain.SourceFormat) bool {
	for _, s := range sources {
		if domain.SourceFormat(s) == want {
			return true
		}
	}
	return false
}

// Warm compiles the pattern sets for every known source at startup so a
// malformed rule fails the process before any job runs.
func Warm() error {
	for _, src := range []domain.SourceFormat{
		domain.SourceNginx, domain.SourceApache, domain.SourceHeaders, domain.SourceCrawl,
	} {
		if _, err := Load(src); err != nil {
			return fmt.Errorf("warm %s: %w", src, err)
		}
	}
	return nil
}
