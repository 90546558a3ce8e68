package knowledge

import (
	"fmt"
	"sort"
	"strings"
)

// Domains of the bundled knowledge databases.
const (
	DomainGeneral    = "general"
	DomainScience    = "science"
	DomainHistory    = "history"
	DomainTechnology = "technology"
	DomainCulture    = "culture"
)

// Record is one topic of the local knowledge base.
type Record interface {
	// Domain names the database the record came from.
	Domain() string
	// Name is the lowercase phrase matched against queries.
	Name() string
	// Summary renders the record as a reply.
	Summary() string
}

// Fact is a question/answer pair from the general knowledge base.
type Fact struct {
	Key    string // e.g. "what_is_ai"
	Answer string
}

func (f Fact) Domain() string  { return DomainGeneral }
func (f Fact) Name() string    { return phrase(f.Key) }
func (f Fact) Summary() string { return f.Answer }

// ScienceTopic groups named statements under a field (physics.newton_laws).
type ScienceTopic struct {
	Field      string
	Topic      string
	Statements map[string]string
}

func (s ScienceTopic) Domain() string { return DomainScience }
func (s ScienceTopic) Name() string   { return phrase(s.Topic) }

func (s ScienceTopic) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s):", title(s.Topic), phrase(s.Field))
	for _, k := range sortedKeys(s.Statements) {
		fmt.Fprintf(&b, " %s: %s", title(k), terminate(s.Statements[k]))
	}
	return b.String()
}

// HistoryTopic describes a civilization, era or event.
type HistoryTopic struct {
	Era            string   `json:"-"`
	Topic          string   `json:"-"`
	Period         string   `json:"period"`
	Achievements   []string `json:"achievements,omitempty"`
	NotableFigures []string `json:"notable_figures,omitempty"`
	Innovations    []string `json:"innovations,omitempty"`
	Impacts        []string `json:"impacts,omitempty"`
}

func (h HistoryTopic) Domain() string { return DomainHistory }
func (h HistoryTopic) Name() string   { return phrase(h.Topic) }

func (h HistoryTopic) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s), %s.", title(h.Topic), phrase(h.Era), h.Period)
	writeList(&b, "Achievements", h.Achievements)
	writeList(&b, "Innovations", h.Innovations)
	writeList(&b, "Impacts", h.Impacts)
	writeList(&b, "Notable figures", h.NotableFigures)
	return b.String()
}

// TechnologyTopic describes a language, tool or field of computing.
type TechnologyTopic struct {
	Category     string   `json:"-"`
	Topic        string   `json:"-"`
	Created      string   `json:"created,omitempty"`
	Creator      string   `json:"creator,omitempty"`
	Features     []string `json:"features,omitempty"`
	Types        []string `json:"types,omitempty"`
	Applications []string `json:"applications,omitempty"`
}

func (t TechnologyTopic) Domain() string { return DomainTechnology }
func (t TechnologyTopic) Name() string   { return phrase(t.Topic) }

func (t TechnologyTopic) Summary() string {
	var b strings.Builder
	b.WriteString(title(t.Topic))
	switch {
	case t.Created != "" && t.Creator != "":
		fmt.Fprintf(&b, " was created in %s by %s.", t.Created, t.Creator)
	case t.Created != "":
		fmt.Fprintf(&b, " was created in %s.", t.Created)
	default:
		fmt.Fprintf(&b, " (%s).", phrase(t.Category))
	}
	writeList(&b, "Features", t.Features)
	writeList(&b, "Types", t.Types)
	writeList(&b, "Applications", t.Applications)
	return b.String()
}

// CultureTopic describes an art movement or music genre.
type CultureTopic struct {
	Category         string   `json:"-"`
	Topic            string   `json:"-"`
	Period           string   `json:"period"`
	Characteristics  []string `json:"characteristics,omitempty"`
	NotableArtists   []string `json:"notable_artists,omitempty"`
	NotableComposers []string `json:"notable_composers,omitempty"`
}

func (c CultureTopic) Domain() string { return DomainCulture }
func (c CultureTopic) Name() string   { return phrase(c.Topic) }

func (c CultureTopic) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s), %s.", title(c.Topic), phrase(c.Category), c.Period)
	writeList(&b, "Characteristics", c.Characteristics)
	writeList(&b, "Notable artists", c.NotableArtists)
	writeList(&b, "Notable composers", c.NotableComposers)
	return b.String()
}

// phrase turns a database key such as "newton_laws" into "newton laws".
func phrase(key string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(key, "_", " ")))
}

// title capitalizes the first letter of a database key rendered as a phrase.
func title(key string) string {
	p := phrase(key)
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

func terminate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?") || strings.HasSuffix(s, ")") {
		return s
	}
	return s + "."
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, " %s: %s.", label, strings.Join(items, ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
