package question

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/zhouzirui/askmore/backend/internal/model/question"
)

//go:embed fallback_questions.json
var fallbackAsset []byte

// fallbackCatalog is the static question set served when every generation
// attempt fails. It is parsed and validated once at startup.
type fallbackCatalog struct {
	version string
	set     question.Set
}

var defaultFallback = mustLoadFallback(fallbackAsset)

func mustLoadFallback(data []byte) fallbackCatalog {
	catalog, err := loadFallback(data)
	if err != nil {
		panic(fmt.Sprintf("invalid fallback question asset: %v", err))
	}
	return catalog
}

func loadFallback(data []byte) (fallbackCatalog, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fallbackCatalog{}, err
	}
	version, _ := raw["version"].(string)
	if version == "" {
		return fallbackCatalog{}, fmt.Errorf("fallback asset has no version")
	}

	set, err := NewValidator(false).Validate(raw, Limits{})
	if err != nil {
		return fallbackCatalog{}, err
	}
	return fallbackCatalog{version: version, set: set}, nil
}

// FallbackVersion identifies the embedded fallback asset.
func FallbackVersion() string {
	return defaultFallback.version
}

// Fallback returns the static set truncated or cyclically padded to n
// questions, re-identified q1..qN.
func Fallback(n int) question.Set {
	return defaultFallback.take(n)
}

func (c fallbackCatalog) take(n int) question.Set {
	n = clamp(n, question.MinQuestions, question.MaxQuestions)
	source := c.set.Questions()
	out := make([]question.Question, n)
	for i := range out {
		q := source[i%len(source)]
		q.ID = question.SequentialID(i)
		out[i] = q
	}
	return question.NewSet(out...)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
