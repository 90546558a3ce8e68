// Package chatbot implements UltimateBot's conversation core: greeting classification,
// response selection, and the append-only transcript.
package chatbot

import (
	"strings"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

// Classifier decides whether a message is a greeting or a query.
//
// Matching is case-insensitive substring search with no word boundaries, so "hi" matches
// inside "this". Anything that contains no pattern or probe is a query.
type Classifier struct {
	patterns []string
	probes   []string
}

// NewClassifier copies and lowercases the given phrases.
func NewClassifier(patterns, probes []string) *Classifier {
	return &Classifier{
		patterns: cleanPhrases(patterns),
		probes:   cleanPhrases(probes),
	}
}

// Classify returns IntentGreeting if text contains any greeting pattern or question probe.
func (c *Classifier) Classify(text string) models.Intent {
	lower := strings.ToLower(text)
	if containsAny(lower, c.patterns) || containsAny(lower, c.probes) {
		return models.IntentGreeting
	}
	return models.IntentQuery
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
