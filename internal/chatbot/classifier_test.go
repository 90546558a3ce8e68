package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ultimatebot/ultimatebot/internal/models"
)

func TestClassify(t *testing.T) {
	persona := DefaultPersona()
	c := NewClassifier(persona.Patterns, persona.Probes)

	tests := []struct {
		name string
		text string
		want models.Intent
	}{
		{"plain greeting", "hello", models.IntentGreeting},
		{"mixed case", "Hey there, what's up?", models.IntentGreeting},
		{"time of day", "GOOD MORNING bot", models.IntentGreeting},
		{"probe only", "how're you today", models.IntentGreeting},
		{"probe what's going on", "so what's going on", models.IntentGreeting},
		{"substring inside word", "this is a question", models.IntentGreeting},
		{"query", "Tell me about the Roman Empire", models.IntentQuery},
		{"query without greeting", "explain quantum mechanics", models.IntentQuery},
		{"greeting word discussed", "etymology of salutations", models.IntentQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassifyEveryPatternIsGreeting(t *testing.T) {
	persona := DefaultPersona()
	c := NewClassifier(persona.Patterns, persona.Probes)

	for _, p := range append(persona.Patterns, persona.Probes...) {
		assert.Equal(t, models.IntentGreeting, c.Classify("well, "+p+"!"), "phrase %q", p)
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier([]string{"hello"}, nil)
	for _, text := range []string{"hello", "Roman Empire", ""} {
		first := c.Classify(text)
		assert.Equal(t, first, c.Classify(text))
	}
}

func TestNewClassifierNormalizesPhrases(t *testing.T) {
	c := NewClassifier([]string{"  Ahoy  ", ""}, []string{"HOWDY PARTNER"})
	assert.Equal(t, models.IntentGreeting, c.Classify("ahoy matey"))
	assert.Equal(t, models.IntentGreeting, c.Classify("Howdy partner"))
	assert.Equal(t, models.IntentQuery, c.Classify("what is a pirate"))
}
