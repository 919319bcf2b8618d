package config

import (
	"strings"

	"golang.org/x/text/cases"
)

type sectionRule struct {
	name   string
	prefix bool
}

// Sections whose content is compiled into command lists. Duplicate keys are
// tolerated here because repeated commands are meaningful.
var commandListSections = []sectionRule{
	{"ShaderOverride", true},
	{"ShaderRegex", true},
	{"TextureOverride", true},
	{"CustomShader", true},
	{"CommandList", true},
	{"BuiltInCustomShader", true},
	{"BuiltInCommandList", true},
	{"Present", false},
	{"ClearRenderTargetView", false},
	{"ClearDepthStencilView", false},
	{"ClearUnorderedAccessViewUint", false},
	{"ClearUnorderedAccessViewFloat", false},
	{"Constants", false},
}

var regularSections = []sectionRule{
	{"Logging", false},
	{"System", false},
	{"Device", false},
	{"Stereo", false},
	{"Rendering", false},
	{"Hunting", false},
	{"Profile", false},
	{"ConvergenceMap", false},
	{"Resource", true},
	{"Key", true},
	{"Preset", true},
	{"Include", true},
	{"Loader", false},
}

var linesWithoutEquals = []sectionRule{
	{"Profile", false},
	{"ShaderRegex", true},
}

// Keys that may legitimately repeat inside regular sections. An empty key list
// allows every key.
var duplicateKeyWhitelist = []struct {
	rule sectionRule
	keys []string
}{
	{sectionRule{"Key", true}, []string{"key", "back"}},
	{sectionRule{"Include", true}, nil},
}

func fold(s string) string {
	return cases.Fold().String(s)
}

func (r sectionRule) matches(folded string) bool {
	name := fold(r.name)
	if r.prefix {
		return strings.HasPrefix(folded, name)
	}
	return folded == name
}

func findRule(rules []sectionRule, section string) (sectionRule, bool) {
	folded := fold(section)
	for _, rule := range rules {
		if rule.matches(folded) {
			return rule, true
		}
	}
	return sectionRule{}, false
}

// IsCommandListSection reports whether the section is compiled into command lists.
func IsCommandListSection(section string) bool {
	_, ok := findRule(commandListSections, section)
	return ok
}

// IsRegularSection reports whether the section is a known settings section.
func IsRegularSection(section string) bool {
	_, ok := findRule(regularSections, section)
	return ok
}

// IsKnownSection reports whether the section appears in either taxonomy table.
func IsKnownSection(section string) bool {
	return IsCommandListSection(section) || IsRegularSection(section)
}

// SectionPrefix returns the canonical prefix keyword of a prefix-type section.
// Only prefix-type sections are namespaced when they come from included files.
func SectionPrefix(section string) (string, bool) {
	for _, rules := range [][]sectionRule{commandListSections, regularSections} {
		rule, ok := findRule(rules, section)
		if ok && rule.prefix {
			return rule.name, true
		}
	}
	return "", false
}

// AllowsLinesWithoutEquals reports whether raw lines are expected in the section.
func AllowsLinesWithoutEquals(section string) bool {
	if IsCommandListSection(section) {
		return true
	}
	_, ok := findRule(linesWithoutEquals, section)
	return ok
}

// DuplicateKeyAllowed reports whether key may appear more than once in section.
func DuplicateKeyAllowed(section, key string) bool {
	if IsCommandListSection(section) {
		return true
	}
	folded := fold(section)
	for _, entry := range duplicateKeyWhitelist {
		if !entry.rule.matches(folded) {
			continue
		}
		if len(entry.keys) == 0 {
			return true
		}
		for _, k := range entry.keys {
			if strings.EqualFold(k, key) {
				return true
			}
		}
	}
	return false
}

// HasPrefixFold reports whether name starts with prefix ignoring case.
func HasPrefixFold(name, prefix string) bool {
	return strings.HasPrefix(fold(name), fold(prefix))
}
