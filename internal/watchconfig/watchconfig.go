// Package watchconfig loads the agent's static watch-config file: the list
// of {path, pattern, max-depth, preserved-dir-depth, multiline-begin-regex,
// encoding, exactly-once} entries that the out-of-scope ConfigurationManager
// collaborator would normally hot-reload. This core only provides the
// static loader and the struct, not hot-reload (spec.md §1 non-goal);
// grounded on the teacher's use of gopkg.in/yaml.v3 (named in go.mod) and
// the original ilogtail YamlUtil test's use of YAML as the config surface.
package watchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/open-logtail/logtailcore/cfg"
	"github.com/open-logtail/logtailcore/internal/collab"
)

// Entry is one configured watch target.
type Entry struct {
	Name               string `yaml:"name"`
	BasePath           string `yaml:"base-path"`
	FilePattern        string `yaml:"file-pattern"`
	MaxDepth           int    `yaml:"max-depth"`
	PreservedDirDepth  int    `yaml:"preserved-dir-depth"`
	MultilineBeginRegex string `yaml:"multiline-begin-regex"`
	Encoding           cfg.Encoding `yaml:"encoding"`
	ExactlyOnce        bool   `yaml:"exactly-once"`
	Concurrency        int    `yaml:"concurrency"`
	Topic              string `yaml:"topic"`
	TopicPattern        string `yaml:"topic-pattern"`
	FirstOpenPolicy     cfg.FirstOpenPolicy `yaml:"first-open-policy"`
}

// File is the on-disk shape of the static watch-config file.
type File struct {
	Watches []Entry `yaml:"watches"`
}

// Load reads and parses the YAML watch-config file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watch config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse watch config %s: %w", path, err)
	}
	for i := range f.Watches {
		if f.Watches[i].Concurrency <= 0 {
			f.Watches[i].Concurrency = 1
		}
	}
	return &f, nil
}

// Manager is a static collab.ConfigurationManager built from a loaded File:
// it matches discovered paths against each entry's base path + glob
// pattern. NewManager compiles each entry's multiline-begin regex only to
// reject an invalid one; each reader compiles its own copy, and no
// named-group rewriting is applied here (only the topic-expression path
// rewrites named groups — see internal/reader/topic.go).
type Manager struct {
	entries []Entry
	byName  map[string]Entry
}

// NewManager builds a Manager from f.
func NewManager(f *File) (*Manager, error) {
	m := &Manager{byName: make(map[string]Entry, len(f.Watches))}
	for _, e := range f.Watches {
		if e.MultilineBeginRegex != "" {
			if _, err := regexp.Compile(e.MultilineBeginRegex); err != nil {
				return nil, fmt.Errorf("watch %q: invalid multiline-begin-regex: %w", e.Name, err)
			}
		}
		m.entries = append(m.entries, e)
		m.byName[e.Name] = e
	}
	return m, nil
}

var _ collab.ConfigurationManager = (*Manager)(nil)

// MatchPath returns the names of every entry whose BasePath is a prefix of
// path and whose FilePattern matches the final path element.
func (m *Manager) MatchPath(path string) []string {
	var names []string
	for _, e := range m.entries {
		if matchesEntry(e, path) {
			names = append(names, e.Name)
		}
	}
	return names
}

func matchesEntry(e Entry, path string) bool {
	base := e.BasePath
	if len(path) < len(base) || path[:len(base)] != base {
		return false
	}
	rest := path[len(base):]
	for len(rest) > 0 && rest[0] == '/' {
		rest = rest[1:]
	}
	name := rest
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == '/' {
			name = rest[i+1:]
			break
		}
	}
	ok, err := filepath.Match(e.FilePattern, name)
	return err == nil && ok
}

// Config looks up a named configuration and narrows it to collab.WatchConfig.
func (m *Manager) Config(name string) (collab.WatchConfig, bool) {
	e, ok := m.byName[name]
	if !ok {
		return collab.WatchConfig{}, false
	}
	return collab.WatchConfig{
		Name:           e.Name,
		BasePath:       e.BasePath,
		FilePattern:    e.FilePattern,
		MaxDepth:       e.MaxDepth,
		PreservedDepth: e.PreservedDirDepth,
		Topic:          e.Topic,
	}, true
}

// Entry returns the full Entry (including fields collab.WatchConfig does
// not carry, like MultilineBeginRegex and ExactlyOnce) for name.
func (m *Manager) Entry(name string) (Entry, bool) {
	e, ok := m.byName[name]
	return e, ok
}

// Names lists every configured watch name.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		names = append(names, e.Name)
	}
	return names
}
