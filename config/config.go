package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/grafana/regexp"
	"github.com/rs/zerolog"

	"github.com/timzifer/d3dxini/expression"
	"github.com/timzifer/d3dxini/internal/diag"
)

// DefaultUserFile is the name of the persisted user override file that lives
// next to the root configuration.
const DefaultUserFile = "d3dx_user.ini"

// Config is the result of loading a root file, the builtin sections, every
// included file and finally the user override file.
type Config struct {
	Root     string
	Dir      string
	UserFile string
	Store    *Store
	Settings Settings
	Profile  []string
}

type loadOptions struct {
	userFile string
	diag     *diag.Collector
	wipeUser bool
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithUserFile overrides the user override file name (relative to the root
// directory) or path.
func WithUserFile(name string) LoadOption {
	return func(o *loadOptions) {
		o.userFile = strings.TrimSpace(name)
	}
}

// WithDiagnostics routes content warnings into collector.
func WithDiagnostics(collector *diag.Collector) LoadOption {
	return func(o *loadOptions) {
		o.diag = collector
	}
}

// WithoutUserFile skips parsing the user override file.
func WithoutUserFile() LoadOption {
	return func(o *loadOptions) {
		o.wipeUser = true
	}
}

// Load reads the configuration rooted at path.
func Load(path string, opts ...LoadOption) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", abs)
	}

	o := loadOptions{userFile: DefaultUserFile}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.diag == nil {
		o.diag = diag.NewCollector(zerolog.Nop())
	}

	cfg := &Config{
		Root:  abs,
		Dir:   filepath.Dir(abs),
		Store: NewStore(o.diag),
	}
	cfg.UserFile = o.userFile
	if cfg.UserFile != "" && !filepath.IsAbs(cfg.UserFile) {
		cfg.UserFile = filepath.Join(cfg.Dir, cfg.UserFile)
	}

	if err := cfg.Store.ParseFile(abs, ""); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	for _, builtin := range Builtins() {
		if err := cfg.Store.Parse(strings.NewReader(builtin.Text), Source{}); err != nil {
			return nil, fmt.Errorf("builtin %s: %w", builtin.Name, err)
		}
	}

	l := &loader{cfg: cfg, diag: o.diag}
	l.resolveIncludes()

	if cfg.UserFile != "" && !o.wipeUser {
		if info, err := os.Stat(cfg.UserFile); err == nil && !info.IsDir() {
			if err := cfg.Store.ParseFile(cfg.UserFile, cfg.UserNamespace()); err != nil {
				o.diag.Warnf(diag.CodeIncludeMissing, "user config: %v", err)
			}
		}
	}

	cfg.Settings = decodeSettings(cfg.Store, o.diag)
	if sec, ok := cfg.Store.Section("Profile"); ok {
		for _, e := range sec.Entries {
			cfg.Profile = append(cfg.Profile, e.Raw)
		}
	}
	return cfg, nil
}

// UserNamespace returns the namespace assigned to lines of the user override file.
func (c *Config) UserNamespace() string {
	if c == nil || c.UserFile == "" {
		return ""
	}
	if rel, err := filepath.Rel(c.Dir, c.UserFile); err == nil && !strings.HasPrefix(rel, "..") {
		return NormalizeNamespace(filepath.ToSlash(rel))
	}
	return NormalizeNamespace(filepath.ToSlash(c.UserFile))
}

// IsUserEntry reports whether the entry was read from the user override file.
func (c *Config) IsUserEntry(e Entry) bool {
	return c != nil && c.UserFile != "" && e.File == c.UserFile
}

// ResolvePath resolves a file referenced from a section of namespace.
func (c *Config) ResolvePath(namespace, value string) string {
	return ResolvePath(c.Dir, namespace, value)
}

// SourceFiles returns every file that contributed to the configuration,
// including the user override file when it exists.
func SourceFiles(cfg *Config) []string {
	if cfg == nil || cfg.Store == nil {
		return nil
	}
	files := cfg.Store.Files()
	if cfg.UserFile != "" && !slices.Contains(files, cfg.UserFile) {
		files = append(files, cfg.UserFile)
	}
	return files
}

type loader struct {
	cfg  *Config
	diag *diag.Collector
	seen map[string]struct{}
}

func (l *loader) resolveIncludes() {
	var excludes []*regexp.Regexp
	if root, ok := l.cfg.Store.Section("Include"); ok {
		for _, pattern := range root.Values("exclude_recursive") {
			re, err := globToRegexp(pattern)
			if err != nil {
				l.diag.Warnf(diag.CodeExcludePattern, "bad pattern exclude_recursive=%s: %v", pattern, err)
				continue
			}
			excludes = append(excludes, re)
		}
	}

	l.seen = map[string]struct{}{fold(filepath.Base(l.cfg.Root)): {}}
	for {
		pending := l.cfg.Store.WithPrefix("Include")
		if len(pending) == 0 {
			break
		}
		for _, sec := range pending {
			l.cfg.Store.Remove(sec.Name)
		}
		for _, sec := range pending {
			l.processInclude(sec, excludes)
		}
	}
}

func (l *loader) processInclude(sec *Section, excludes []*regexp.Regexp) {
	if cond, ok := sec.Get("condition"); ok && !l.includeCondition(sec, cond) {
		return
	}
	dir := SectionDir(sec.Namespace)
	for _, entry := range sec.Entries {
		if entry.IsRaw() {
			l.diag.Warnf(diag.CodeIncludeUnknownKey, "[%s] unrecognised line: %s", sec.Name, entry.Raw)
			continue
		}
		key := strings.ToLower(entry.Key)
		switch key {
		case "include", "include_recursive":
		case "exclude_recursive", "condition":
			continue
		default:
			l.diag.Warnf(diag.CodeIncludeUnknownKey, "[%s] unknown include key: %s", sec.Name, entry.Key)
			continue
		}
		rel := NormalizeNamespace(filepath.ToSlash(strings.ReplaceAll(dir+entry.Value, NamespaceSeparator, "/")))
		if rel == "" || strings.HasPrefix(rel, "..") {
			l.diag.Warnf(diag.CodeIncludeMissing, "[%s] include path escapes the configuration directory: %s", sec.Name, entry.Value)
			continue
		}
		if !l.markSeen(rel) {
			continue
		}
		if key == "include" {
			l.includeFile(rel)
			continue
		}
		l.includeRecursive(rel, excludes)
	}
}

func (l *loader) includeCondition(sec *Section, cond string) bool {
	value, err := expression.EvaluateStatic(strings.ToLower(cond))
	if err != nil {
		if errors.Is(err, expression.ErrNotStatic) {
			l.diag.Warnf(diag.CodeIncludeCondition, "[%s] include condition could not be statically evaluated: %s", sec.Name, cond)
		} else {
			l.diag.Warnf(diag.CodeIncludeCondition, "[%s] unable to parse include condition %s: %v", sec.Name, cond, err)
		}
		return false
	}
	if value == 0 {
		logger := l.diag.Logger()
		logger.Info().Str("section", sec.Name).Msg("include condition false, skipping")
		return false
	}
	return true
}

func (l *loader) markSeen(rel string) bool {
	key := fold(rel)
	if _, ok := l.seen[key]; ok {
		l.diag.Warnf(diag.CodeIncludeRepeated, "file included multiple times: %s", rel)
		return false
	}
	l.seen[key] = struct{}{}
	return true
}

func (l *loader) includeFile(rel string) {
	path := NamespacePath(l.cfg.Dir, rel)
	if err := l.cfg.Store.ParseFile(path, rel); err != nil {
		l.diag.Warnf(diag.CodeIncludeMissing, "error opening %s: %v", path, err)
	}
}

func (l *loader) includeRecursive(rel string, excludes []*regexp.Regexp) {
	path := NamespacePath(l.cfg.Dir, rel)
	entries, err := os.ReadDir(path)
	if err != nil {
		l.diag.Warnf(diag.CodeIncludeMissing, "recursive include path %s not found", path)
		return
	}

	var files, dirs []string
	for _, entry := range entries {
		name := entry.Name()
		if matchesAny(excludes, name) {
			logger := l.diag.Logger()
			logger.Debug().Str("path", name).Msg("excluding")
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, name)
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ".ini") {
			continue
		}
		full := filepath.Join(path, name)
		if full == l.cfg.Root || full == l.cfg.UserFile {
			continue
		}
		files = append(files, name)
	}
	sortFold(files)
	sortFold(dirs)

	for _, name := range files {
		child := rel + NamespaceSeparator + name
		if !l.markSeen(child) {
			continue
		}
		l.includeFile(child)
	}
	for _, name := range dirs {
		l.includeRecursive(rel+NamespaceSeparator+name, excludes)
	}
}

func sortFold(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, b := fold(names[i]), fold(names[j])
		if a == b {
			return names[i] < names[j]
		}
		return a < b
	})
}

func matchesAny(patterns []*regexp.Regexp, name string) bool {
	for _, re := range patterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// globToRegexp converts a shell glob into a case-insensitive anchored regexp.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	glob = strings.TrimSpace(glob)
	if glob == "" {
		return nil, errors.New("empty pattern")
	}
	var b strings.Builder
	b.WriteString("(?i)^")
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated character class in %q", glob)
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
