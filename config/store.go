package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/timzifer/d3dxini/internal/diag"
)

// Entry is a single line of a section. Raw lines without a '=' have an empty Key.
type Entry struct {
	Key       string
	Value     string
	Raw       string
	Namespace string
	File      string
	Line      int
	KeyValue  bool
}

// IsRaw reports whether the entry was a line without a value separator.
func (e Entry) IsRaw() bool {
	return !e.KeyValue
}

// Section is an ordered list of entries plus a lookup of the last value per key.
type Section struct {
	Name      string
	Namespace string
	File      string
	Entries   []Entry

	values map[string]string
	counts map[string]int
}

func newSection(name, namespace, file string) *Section {
	return &Section{
		Name:      name,
		Namespace: namespace,
		File:      file,
		values:    make(map[string]string),
		counts:    make(map[string]int),
	}
}

// Get returns the last value assigned to key.
func (s *Section) Get(key string) (string, bool) {
	if s == nil {
		return "", false
	}
	v, ok := s.values[fold(key)]
	return v, ok
}

// Has reports whether key appears in the section.
func (s *Section) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Values returns every value of key in file order.
func (s *Section) Values(key string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, e := range s.Entries {
		if e.KeyValue && strings.EqualFold(e.Key, key) {
			out = append(out, e.Value)
		}
	}
	return out
}

// RemoveEntries drops every entry for which drop returns true and rebuilds the
// key lookup.
func (s *Section) RemoveEntries(drop func(Entry) bool) {
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if !drop(e) {
			kept = append(kept, e)
		}
	}
	s.Entries = kept
	s.values = make(map[string]string)
	s.counts = make(map[string]int)
	for _, e := range s.Entries {
		if !e.KeyValue {
			continue
		}
		s.values[fold(e.Key)] = e.Value
		s.counts[fold(e.Key)]++
	}
}

func (s *Section) add(e Entry) (duplicate bool) {
	s.Entries = append(s.Entries, e)
	if !e.KeyValue {
		return false
	}
	k := fold(e.Key)
	s.values[k] = e.Value
	s.counts[k]++
	return s.counts[k] > 1
}

// Store is the case-insensitive section table of a configuration load.
type Store struct {
	sections map[string]*Section
	files    []string
	diag     *diag.Collector
}

// NewStore creates an empty store reporting problems to collector.
func NewStore(collector *diag.Collector) *Store {
	return &Store{sections: make(map[string]*Section), diag: collector}
}

// Source identifies where parsed text comes from.
type Source struct {
	File      string
	Namespace string
}

// Section looks up a section by name ignoring case.
func (s *Store) Section(name string) (*Section, bool) {
	sec, ok := s.sections[fold(name)]
	return sec, ok
}

// Len returns the number of sections.
func (s *Store) Len() int { return len(s.sections) }

// Sections returns all sections ordered case-insensitively by name.
func (s *Store) Sections() []*Section {
	return s.sorted(func(string) bool { return true })
}

// WithPrefix returns the sections whose names start with prefix ignoring case,
// ordered case-insensitively.
func (s *Store) WithPrefix(prefix string) []*Section {
	p := fold(prefix)
	return s.sorted(func(folded string) bool { return strings.HasPrefix(folded, p) })
}

func (s *Store) sorted(keep func(string) bool) []*Section {
	keys := make([]string, 0, len(s.sections))
	for k := range s.sections {
		if keep(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]*Section, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.sections[k])
	}
	return out
}

// Remove deletes a section and returns it.
func (s *Store) Remove(name string) (*Section, bool) {
	k := fold(name)
	sec, ok := s.sections[k]
	if ok {
		delete(s.sections, k)
	}
	return sec, ok
}

// Files returns the source files parsed into the store in parse order.
func (s *Store) Files() []string {
	return append([]string(nil), s.files...)
}

// ParseFile parses an ini file into the store under namespace.
func (s *Store) ParseFile(path, namespace string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	s.files = append(s.files, path)
	return s.Parse(f, Source{File: path, Namespace: namespace})
}

// Parse reads ini text line by line into the store.
func (s *Store) Parse(r io.Reader, src Source) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *Section
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			current = s.openSection(strings.Trim(line, " \t[]"), src)
			continue
		}
		if current == nil {
			s.diag.Warnf(diag.CodeOutsideSection, "%s:%d: entry outside of section: %s", src.File, lineNo, line)
			continue
		}
		entry := Entry{Raw: line, Namespace: src.Namespace, File: src.File, Line: lineNo}
		if idx := strings.IndexByte(line, '='); idx >= 0 {
			entry.KeyValue = true
			entry.Key = strings.TrimSpace(line[:idx])
			entry.Value = strings.TrimSpace(line[idx+1:])
		} else if !AllowsLinesWithoutEquals(current.Name) {
			s.diag.Warnf(diag.CodeMissingEquals, "[%s] line without '=': %s", current.Name, line)
		}
		if current.add(entry) && !DuplicateKeyAllowed(current.Name, entry.Key) {
			s.diag.Warnf(diag.CodeDuplicateKey, "[%s] duplicate key: %s", current.Name, entry.Key)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", displaySource(src), err)
	}
	return nil
}

func (s *Store) openSection(name string, src Source) *Section {
	namespace := ""
	if renamed, ok := NamespacedSection(name, src.Namespace); ok {
		name = renamed
		namespace = src.Namespace
	}
	if !IsKnownSection(name) {
		s.diag.Warnf(diag.CodeUnknownSection, "unknown section [%s] in %s", name, displaySource(src))
	}
	k := fold(name)
	if sec, ok := s.sections[k]; ok {
		return sec
	}
	sec := newSection(name, namespace, src.File)
	s.sections[k] = sec
	return sec
}

func displaySource(src Source) string {
	if src.File == "" {
		return "<builtin>"
	}
	return src.File
}
