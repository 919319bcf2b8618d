package overrides

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"

	"github.com/grafana/regexp"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
)

// ShaderRegexPattern is a .Pattern subsection and its optional .Replace.
type ShaderRegexPattern struct {
	Name      string
	Source    string
	Regexp    *regexp.Regexp
	Replace   string
	DoReplace bool
}

// ShaderRegexGroup is a [ShaderRegex*] section with its subsections. A group
// only exists when every one of its sections parsed and compiled.
type ShaderRegexGroup struct {
	*commandlist.SubList
	ShaderModels []string
	Temps        []string
	FilterIndex  float32
	Patterns     []*ShaderRegexPattern
	Declarations []string
}

// ShaderRegexSet holds the surviving groups sorted by section name, and a
// checksum over every ShaderRegex section for cache invalidation.
type ShaderRegexSet struct {
	Groups []*ShaderRegexGroup
	Hash   uint32
}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var shaderRegexKeys = []string{"shader_model", "temps", "filter_index"}

func (b *builder) parseShaderRegex() {
	groups := make(map[string]*ShaderRegexGroup)
	var hash uint32

	for _, sec := range b.store.WithPrefix("ShaderRegex") {
		hash = crc32.Update(hash, castagnoli, []byte(sec.Name))
		for _, e := range sec.Entries {
			hash = crc32.Update(hash, castagnoli, []byte(e.Raw))
		}

		parts := splitRegexSection(sec)
		id := key(parts[0])
		group, exists := groups[id]
		if len(parts) == 1 {
			group = &ShaderRegexGroup{SubList: commandlist.NewSubList(sec.Name, commandlist.KindCommandList)}
			groups[id] = group
		} else if !exists {
			b.diag.Warnf(diag.CodeShaderRegex, "[%s] missing [%s] section", sec.Name, parts[0])
			continue
		}

		var err error
		switch {
		case len(parts) == 1:
			err = b.parseRegexMain(sec, group)
		case len(parts) == 2 && strings.EqualFold(parts[1], "Pattern"):
			err = parseRegexPattern(sec, parts[1], group)
		case len(parts) == 2 && strings.EqualFold(parts[1], "InsertDeclarations"):
			for _, e := range sec.Entries {
				group.Declarations = append(group.Declarations, e.Raw)
			}
		case len(parts) == 3 && strings.HasPrefix(strings.ToLower(parts[1]), "pattern") && strings.EqualFold(parts[2], "Replace"):
			err = parseRegexReplace(sec, parts[1], group)
		default:
			err = fmt.Errorf("unknown subsection")
		}
		if err != nil {
			b.diag.Warnf(diag.CodeShaderRegex, "[%s] %v; disabling entire shader regex group [%s]", sec.Name, err, parts[0])
			delete(groups, id)
		}
	}

	set := b.reg.ShaderRegex
	set.Hash = hash
	for _, g := range groups {
		set.Groups = append(set.Groups, g)
	}
	sort.Slice(set.Groups, func(i, j int) bool { return key(set.Groups[i].Section) < key(set.Groups[j].Section) })
	for _, g := range set.Groups {
		b.reg.Roster.Register(g.Pre, g.Post)
	}
	b.log.Debug().Str("hash", fmt.Sprintf("%08x", hash)).Int("groups", len(set.Groups)).Msg("shader regex parsed")
}

// splitRegexSection splits the section name at '.', ignoring dots inside the
// namespace. The first part keeps the prefix and namespace.
func splitRegexSection(sec *config.Section) []string {
	head, suffix := "", sec.Name
	if _, s, ok := config.SplitNamespacedSection(sec.Name, sec.Namespace); ok {
		head, suffix = sec.Name[:len(sec.Name)-len(s)], s
	}
	parts := strings.Split(suffix, ".")
	parts[0] = head + parts[0]
	return parts
}

func (b *builder) parseRegexMain(sec *config.Section, g *ShaderRegexGroup) error {
	r := b.reader(sec)
	models, ok := r.str("shader_model")
	if !ok {
		return fmt.Errorf("missing shader_model")
	}
	g.ShaderModels = uniqueFields(models)
	if temps, ok := r.str("temps"); ok {
		g.Temps = uniqueFields(temps)
	}
	f, _ := r.float("filter_index", NoFilterIndex)
	g.FilterIndex = float32(f)
	b.compiler.Compile(sec, g.Pre, g.Post, commandlist.CompileOptions{Whitelist: shaderRegexKeys, Deferred: true})
	return nil
}

func parseRegexPattern(sec *config.Section, name string, g *ShaderRegexGroup) error {
	var src strings.Builder
	for _, e := range sec.Entries {
		src.WriteString(e.Raw)
	}
	re, err := regexp.Compile(namedGroups(src.String()))
	if err != nil {
		return fmt.Errorf("compile pattern: %w", err)
	}
	for _, group := range re.SubexpNames() {
		for _, t := range g.Temps {
			if group != "" && strings.EqualFold(group, t) {
				return fmt.Errorf("named capture group %s overlaps with temp regs", group)
			}
		}
	}
	g.Patterns = append(g.Patterns, &ShaderRegexPattern{Name: strings.ToLower(name), Source: src.String(), Regexp: re})
	return nil
}

func parseRegexReplace(sec *config.Section, name string, g *ShaderRegexGroup) error {
	p := g.pattern(name)
	if p == nil {
		return fmt.Errorf("missing corresponding pattern section")
	}
	var repl strings.Builder
	for _, e := range sec.Entries {
		repl.WriteString(e.Raw)
	}
	p.Replace, p.DoReplace = repl.String(), true
	return nil
}

func (g *ShaderRegexGroup) pattern(name string) *ShaderRegexPattern {
	for _, p := range g.Patterns {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// namedGroups rewrites (?<name> groups into the (?P<name> form.
func namedGroups(pattern string) string {
	var out strings.Builder
	for i := 0; i < len(pattern); i++ {
		if strings.HasPrefix(pattern[i:], "(?<") && i+3 < len(pattern) && pattern[i+3] != '=' && pattern[i+3] != '!' {
			out.WriteString("(?P<")
			i += 2
			continue
		}
		out.WriteByte(pattern[i])
	}
	return out.String()
}

func uniqueFields(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range strings.Fields(text) {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Apply runs the group against disassembled shader text of the given model.
// It reports whether every pattern matched; replacements and declarations
// are only applied in that case. Declarations go after the first line.
func (g *ShaderRegexGroup) Apply(model, asm string) (string, bool) {
	supported := false
	for _, m := range g.ShaderModels {
		if strings.EqualFold(m, model) {
			supported = true
			break
		}
	}
	if !supported || len(g.Patterns) == 0 {
		return asm, false
	}
	for _, p := range g.Patterns {
		if !p.Regexp.MatchString(asm) {
			return asm, false
		}
	}
	for _, p := range g.Patterns {
		if p.DoReplace {
			asm = p.Regexp.ReplaceAllString(asm, p.Replace)
		}
	}
	if len(g.Declarations) > 0 {
		first, rest, _ := strings.Cut(asm, "\n")
		asm = first + "\n" + strings.Join(g.Declarations, "\n") + "\n" + rest
	}
	return asm, true
}
