package chatbot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyResponsePool is returned when a persona has no greeting replies.
var ErrEmptyResponsePool = errors.New("response pool is empty")

// tone is the register of a pooled greeting reply; it matches the YAML key of its group.
type tone string

const (
	toneFriendly     tone = "friendly"
	toneCasual       tone = "casual"
	toneWelcoming    tone = "welcoming"
	toneProfessional tone = "professional"
)

// ResponsePool holds the candidate greeting replies grouped by tone.
type ResponsePool struct {
	Friendly     []string `yaml:"friendly"`
	Casual       []string `yaml:"casual"`
	Welcoming    []string `yaml:"welcoming"`
	Professional []string `yaml:"professional"`
}

// All returns every reply in tone order: friendly, casual, welcoming, professional.
func (p ResponsePool) All() []string {
	out := make([]string, 0, len(p.Friendly)+len(p.Casual)+len(p.Welcoming)+len(p.Professional))
	out = append(out, p.Friendly...)
	out = append(out, p.Casual...)
	out = append(out, p.Welcoming...)
	return append(out, p.Professional...)
}

func (p ResponsePool) byTone(t tone) []string {
	switch t {
	case toneFriendly:
		return p.Friendly
	case toneCasual:
		return p.Casual
	case toneWelcoming:
		return p.Welcoming
	case toneProfessional:
		return p.Professional
	default:
		return nil
	}
}

// Persona is the static vocabulary of the bot: what counts as a greeting and how to answer one.
type Persona struct {
	Name      string       `yaml:"name"`
	Patterns  []string     `yaml:"patterns"`
	Probes    []string     `yaml:"probes"`
	Responses ResponsePool `yaml:"responses"`
}

// DefaultPersona returns the built-in persona.
func DefaultPersona() Persona {
	return Persona{
		Name:     "UltimateBot",
		Patterns: append([]string(nil), defaultGreetingPatterns...),
		Probes:   append([]string(nil), defaultQuestionProbes...),
		Responses: ResponsePool{
			Friendly:     append([]string(nil), defaultResponses.Friendly...),
			Casual:       append([]string(nil), defaultResponses.Casual...),
			Welcoming:    append([]string(nil), defaultResponses.Welcoming...),
			Professional: append([]string(nil), defaultResponses.Professional...),
		},
	}
}

// LoadPersona reads a YAML persona file. Keys missing from the file keep their defaults.
func LoadPersona(path string) (Persona, error) {
	p := DefaultPersona()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}
	if err := p.normalize(); err != nil {
		return p, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	for _, t := range []tone{toneFriendly, toneCasual, toneWelcoming, toneProfessional} {
		if len(p.Responses.byTone(t)) == 0 {
			slog.Debug("chatbot.LoadPersona: no replies for tone", "path", path, "tone", t)
		}
	}
	slog.Debug("chatbot.LoadPersona: persona loaded", "path", path, "patterns", len(p.Patterns), "probes", len(p.Probes), "responses", len(p.Responses.All()))
	return p, nil
}

// normalize trims phrases and replies, lowercases phrases, drops blanks, and checks the pool is usable.
func (p *Persona) normalize() error {
	p.Patterns = cleanPhrases(p.Patterns)
	p.Probes = cleanPhrases(p.Probes)
	p.Responses = ResponsePool{
		Friendly:     cleanReplies(p.Responses.Friendly),
		Casual:       cleanReplies(p.Responses.Casual),
		Welcoming:    cleanReplies(p.Responses.Welcoming),
		Professional: cleanReplies(p.Responses.Professional),
	}
	if len(p.Responses.All()) == 0 {
		return ErrEmptyResponsePool
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = "UltimateBot"
	}
	return nil
}

func cleanPhrases(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanReplies trims replies and drops blank ones. Case is kept.
func cleanReplies(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
