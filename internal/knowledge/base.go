package knowledge

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// SourceLocal names the local knowledge base in LookupErrors.
const SourceLocal = "knowledge base"

// Database file names, shared by the embedded copy and override directories.
const (
	GeneralFile    = "knowledge_base.json"
	ScienceFile    = "science_database.json"
	HistoryFile    = "history_database.json"
	TechnologyFile = "technology_database.json"
	CultureFile    = "culture_database.json"
)

//go:embed data/*.json
var embeddedData embed.FS

// On-disk shapes of the databases. Each is decoded once and flattened into typed records.
type (
	generalDatabase struct {
		GeneralKnowledge map[string]string `json:"general_knowledge"`
	}
	scienceDatabase    map[string]map[string]map[string]string
	historyDatabase    map[string]map[string]HistoryTopic
	technologyDatabase map[string]map[string]TechnologyTopic
	cultureDatabase    map[string]map[string]CultureTopic
)

// Base is the local knowledge base. It is immutable after loading and safe for concurrent use.
type Base struct {
	facts   []Record
	records []Record
}

// LoadEmbedded loads the databases bundled with the binary.
func LoadEmbedded() (*Base, error) {
	sub, err := fs.Sub(embeddedData, "data")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded knowledge data: %w", err)
	}
	return load(sub, true)
}

// LoadDir loads the databases from dir. Missing files are skipped with a warning and invalid
// files are skipped with an error log, so a partial directory still yields a usable Base.
func LoadDir(dir string) (*Base, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat knowledge directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("knowledge path %s is not a directory", dir)
	}
	return load(os.DirFS(dir), false)
}

// NewBase builds a Base from records directly. Facts are matched before other records.
func NewBase(records ...Record) *Base {
	b := &Base{}
	for _, r := range records {
		if _, ok := r.(Fact); ok {
			b.facts = append(b.facts, r)
		} else {
			b.records = append(b.records, r)
		}
	}
	b.sort()
	return b
}

func load(fsys fs.FS, strict bool) (*Base, error) {
	b := &Base{}

	var general generalDatabase
	if ok, err := decodeFile(fsys, GeneralFile, &general, strict); err != nil {
		return nil, err
	} else if ok {
		for key, answer := range general.GeneralKnowledge {
			b.facts = append(b.facts, Fact{Key: key, Answer: answer})
		}
	}

	var science scienceDatabase
	if ok, err := decodeFile(fsys, ScienceFile, &science, strict); err != nil {
		return nil, err
	} else if ok {
		for field, topics := range science {
			for topic, statements := range topics {
				b.records = append(b.records, ScienceTopic{Field: field, Topic: topic, Statements: statements})
			}
		}
	}

	var history historyDatabase
	if ok, err := decodeFile(fsys, HistoryFile, &history, strict); err != nil {
		return nil, err
	} else if ok {
		for era, topics := range history {
			for name, topic := range topics {
				topic.Era, topic.Topic = era, name
				b.records = append(b.records, topic)
			}
		}
	}

	var technology technologyDatabase
	if ok, err := decodeFile(fsys, TechnologyFile, &technology, strict); err != nil {
		return nil, err
	} else if ok {
		for category, topics := range technology {
			for name, topic := range topics {
				topic.Category, topic.Topic = category, name
				b.records = append(b.records, topic)
			}
		}
	}

	var culture cultureDatabase
	if ok, err := decodeFile(fsys, CultureFile, &culture, strict); err != nil {
		return nil, err
	} else if ok {
		for category, topics := range culture {
			for name, topic := range topics {
				topic.Category, topic.Topic = category, name
				b.records = append(b.records, topic)
			}
		}
	}

	b.sort()
	slog.Debug("knowledge.load: knowledge base loaded", "facts", len(b.facts), "records", len(b.records))
	return b, nil
}

// decodeFile decodes name into v. In strict mode any failure is returned; otherwise
// missing and invalid files are logged and reported as not loaded.
func decodeFile(fsys fs.FS, name string, v any, strict bool) (bool, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if strict {
			return false, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("knowledge.decodeFile: database file not found", "file", name)
		} else {
			slog.Error("knowledge.decodeFile: failed to read database file", "file", name, "error", err)
		}
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		if strict {
			return false, fmt.Errorf("invalid JSON in %s: %w", name, err)
		}
		slog.Error("knowledge.decodeFile: invalid JSON in database file", "file", name, "error", err)
		return false, nil
	}
	return true, nil
}

// sort orders records longest name first so the most specific topic wins a match.
func (b *Base) sort() {
	less := func(rs []Record) func(i, j int) bool {
		return func(i, j int) bool {
			ni, nj := rs[i].Name(), rs[j].Name()
			if len(ni) != len(nj) {
				return len(ni) > len(nj)
			}
			if ni != nj {
				return ni < nj
			}
			return rs[i].Domain() < rs[j].Domain()
		}
	}
	sort.SliceStable(b.facts, less(b.facts))
	sort.SliceStable(b.records, less(b.records))
}

// Len returns the number of facts and topic records held.
func (b *Base) Len() int {
	return len(b.facts) + len(b.records)
}

// Records returns every record, facts first.
func (b *Base) Records() []Record {
	out := make([]Record, 0, b.Len())
	out = append(out, b.facts...)
	return append(out, b.records...)
}

// Merge returns a Base holding b's records plus other's. Records in other with the same
// domain and name replace b's.
func (b *Base) Merge(other *Base) *Base {
	if other == nil {
		return b
	}
	seen := make(map[string]bool)
	var merged []Record
	for _, r := range other.Records() {
		seen[r.Domain()+"/"+r.Name()] = true
		merged = append(merged, r)
	}
	for _, r := range b.Records() {
		if !seen[r.Domain()+"/"+r.Name()] {
			merged = append(merged, r)
		}
	}
	return NewBase(merged...)
}

// Lookup matches general-knowledge questions first, then topic names appearing as whole
// words in the query. The longest matching name wins.
func (b *Base) Lookup(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewLookupError(KindTimeout, SourceLocal, query, err)
	}
	normalized := normalize(query)
	if normalized == "" {
		return "", NewLookupError(KindMalformed, SourceLocal, query, ErrEmptyQuery)
	}
	padded := " " + normalized + " "

	for _, group := range [][]Record{b.facts, b.records} {
		for _, r := range group {
			name := r.Name()
			if name != "" && strings.Contains(padded, " "+name+" ") {
				slog.Debug("Base.Lookup: matched local record", "domain", r.Domain(), "name", name)
				return r.Summary(), nil
			}
		}
	}
	return "", NewLookupError(KindNotFound, SourceLocal, query, ErrNoAnswer)
}

// normalize lowercases text and collapses every run of non-alphanumeric runes to one space.
func normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// DirHasDatabases reports whether dir contains at least one known database file.
func DirHasDatabases(dir string) bool {
	for _, name := range []string{GeneralFile, ScienceFile, HistoryFile, TechnologyFile, CultureFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}
