package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/d3dxini/internal/diag"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func load(t *testing.T, root string, opts ...LoadOption) (*Config, *diag.Collector) {
	t.Helper()
	collector := diag.NewCollector(zerolog.Nop())
	cfg, err := Load(root, append([]LoadOption{WithDiagnostics(collector)}, opts...)...)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg, collector
}

func TestLoadIncludeCycleParsesEachFileOnce(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Include]\ninclude = a.ini\n")
	writeFile(t, filepath.Join(dir, "a.ini"), "[Include]\ninclude = b.ini\n[ShaderOverrideA]\nhash = 1\n")
	writeFile(t, filepath.Join(dir, "b.ini"), "[Include]\ninclude = a.ini\n[CommandListB]\nx = 1\n")

	cfg, collector := load(t, root)
	want := []string{root, filepath.Join(dir, "a.ini"), filepath.Join(dir, "b.ini")}
	if diff := cmp.Diff(want, cfg.Store.Files()); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}
	if got := collector.CountCode(diag.CodeIncludeRepeated); got != 1 {
		t.Fatalf("expected one repeated include warning, got %d", got)
	}
	if _, ok := cfg.Store.Section(`ShaderOverride\a.ini\A`); !ok {
		t.Fatal("expected namespaced shader override from a.ini")
	}
	if _, ok := cfg.Store.Section(`CommandList\b.ini\B`); !ok {
		t.Fatal("expected namespaced command list from b.ini")
	}
	if len(cfg.Store.WithPrefix("Include")) != 0 {
		t.Fatal("include sections must be consumed")
	}
}

func TestSectionsDifferingOnlyByCaseMerge(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Hunting]\nhunting = 1\n[hunting]\nhunting = 2\n[PRESENT]\nx = 1\n[present]\nx = 2\n")

	cfg, collector := load(t, root)
	sec, ok := cfg.Store.Section("HUNTING")
	require.True(t, ok)
	require.Len(t, sec.Entries, 2)
	v, _ := sec.Get("Hunting")
	require.Equal(t, "2", v)
	require.Equal(t, 2, cfg.Settings.Hunting.Hunting)

	present, ok := cfg.Store.Section("Present")
	require.True(t, ok)
	require.Equal(t, []string{"1", "2"}, present.Values("x"))

	require.Equal(t, 1, collector.CountCode(diag.CodeDuplicateKey), "only the regular section flags its duplicate")
}

func TestIncludeCondition(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, `[IncludeYes]
condition = 1
include = yes.ini
[IncludeNo]
condition = 0
include = no.ini
[IncludeDynamic]
condition = $x
include = dynamic.ini
`)
	for _, name := range []string{"yes.ini", "no.ini", "dynamic.ini"} {
		writeFile(t, filepath.Join(dir, name), "[Present]\n")
	}

	cfg, collector := load(t, root)
	want := []string{root, filepath.Join(dir, "yes.ini")}
	if diff := cmp.Diff(want, cfg.Store.Files()); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}
	require.Equal(t, 1, collector.CountCode(diag.CodeIncludeCondition))
}

func TestIncludeRecursiveOrderAndExclusions(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Include]\ninclude_recursive = Mods\nexclude_recursive = DISABLED*\n")
	writeFile(t, filepath.Join(dir, "Mods", "b.ini"), "[Present]\nrun = CommandListB\n[CommandListB]\n")
	writeFile(t, filepath.Join(dir, "Mods", "A.ini"), "[TextureOverrideX]\nhash = 12345678\n")
	writeFile(t, filepath.Join(dir, "Mods", "sub", "c.ini"), "[Key1]\nkey = VK_F1\n")
	writeFile(t, filepath.Join(dir, "Mods", "DISABLED_x.ini"), "[Present]\n")
	writeFile(t, filepath.Join(dir, "Mods", "DisabledDir", "d.ini"), "[Present]\n")
	writeFile(t, filepath.Join(dir, "Mods", "readme.txt"), "not an ini")

	cfg, _ := load(t, root)
	want := []string{
		root,
		filepath.Join(dir, "Mods", "A.ini"),
		filepath.Join(dir, "Mods", "b.ini"),
		filepath.Join(dir, "Mods", "sub", "c.ini"),
	}
	if diff := cmp.Diff(want, cfg.Store.Files()); diff != "" {
		t.Fatalf("unexpected files (-want +got):\n%s", diff)
	}

	tex, ok := cfg.Store.Section(`TextureOverride\Mods\A.ini\X`)
	require.True(t, ok)
	require.Equal(t, `Mods\A.ini`, tex.Namespace)

	_, ok = cfg.Store.Section(`Key\Mods\sub\c.ini\1`)
	require.True(t, ok)

	present, ok := cfg.Store.Section("Present")
	require.True(t, ok, "exact-match sections are shared")
	require.Empty(t, present.Namespace)
	require.Len(t, present.Entries, 1)
	require.Equal(t, `Mods\b.ini`, present.Entries[0].Namespace)
}

func TestIncludeEscapingRootIsRejected(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "game", "d3dx.ini")
	writeFile(t, root, "[Include]\ninclude = ../outside.ini\ninclude = missing.ini\nfoo = bar\n")
	writeFile(t, filepath.Join(dir, "outside.ini"), "[Present]\n")

	cfg, collector := load(t, root)
	require.Equal(t, []string{root}, cfg.Store.Files())
	require.Equal(t, 2, collector.CountCode(diag.CodeIncludeMissing))
	require.Equal(t, 1, collector.CountCode(diag.CodeIncludeUnknownKey))
}

func TestStoreLineHandling(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "stray = 1\n; comment\n[Hunting]\nnoequals\n[Profile]\nSome raw line\n[Mystery]\n")

	cfg, collector := load(t, root)
	require.Equal(t, 1, collector.CountCode(diag.CodeOutsideSection))
	require.Equal(t, 1, collector.CountCode(diag.CodeMissingEquals))
	require.Equal(t, 1, collector.CountCode(diag.CodeUnknownSection))
	require.Equal(t, []string{"Some raw line"}, cfg.Profile)

	sec, _ := cfg.Store.Section("Hunting")
	require.True(t, sec.Entries[0].IsRaw())
	require.Equal(t, 4, sec.Entries[0].Line)
}

func TestSettingsDecode(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, `[Logging]
debug = 1
format = text
loki_url = http://loki:3100/loki/api/v1/push
loki_labels = game=witcher, env = dev, broken
[Hunting]
hunting = 2
reload_config = no_modifiers VK_F10
tune_step = 0.25
[Rendering]
cache_shaders = 1
ini_params = 120
`)
	cfg, collector := load(t, root)
	require.Zero(t, collector.Count())

	s := cfg.Settings
	require.Equal(t, "debug", s.Logging.EffectiveLevel())
	require.Equal(t, "text", s.Logging.Format)
	loki := s.Logging.Loki()
	require.True(t, loki.Enabled)
	require.Equal(t, map[string]string{"game": "witcher", "env": "dev"}, loki.Labels)

	require.Equal(t, 2, s.Hunting.Hunting)
	require.Equal(t, "no_modifiers VK_F10", s.Hunting.ReloadConfig)
	require.Equal(t, 0.25, s.Hunting.TuneStep)
	require.True(t, s.Rendering.CacheShaders)
	require.Equal(t, 120, s.Rendering.IniParams)
}

func TestSettingsInvalidValueWarns(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Hunting]\nhunting = lots\n")
	_, collector := load(t, root)
	require.Equal(t, 1, collector.CountCode(diag.CodeInvalidValue))
}

func TestUserFile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Constants]\nglobal persist $x = 1\n")
	writeFile(t, filepath.Join(dir, DefaultUserFile), "[Constants]\n$x = 4\n")

	cfg, _ := load(t, root)
	require.Equal(t, filepath.Join(dir, DefaultUserFile), cfg.UserFile)
	require.Equal(t, DefaultUserFile, cfg.UserNamespace())
	require.Equal(t, []string{root, cfg.UserFile}, cfg.Store.Files())
	require.Equal(t, []string{root, cfg.UserFile}, SourceFiles(cfg))

	sec, ok := cfg.Store.Section("Constants")
	require.True(t, ok)
	require.Len(t, sec.Entries, 2)
	require.False(t, cfg.IsUserEntry(sec.Entries[0]))
	require.True(t, cfg.IsUserEntry(sec.Entries[1]))
	require.Equal(t, DefaultUserFile, sec.Entries[1].Namespace)

	wiped, _ := load(t, root, WithoutUserFile())
	sec, _ = wiped.Store.Section("Constants")
	require.Len(t, sec.Entries, 1)

	custom, _ := load(t, root, WithUserFile("other.ini"))
	require.Equal(t, filepath.Join(dir, "other.ini"), custom.UserFile)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	dir := t.TempDir()
	_, err = Load(dir)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.ini"))
	require.Error(t, err)
}

func TestBuiltinsAreInjected(t *testing.T) {
	ResetBuiltinsForTest()
	t.Cleanup(ResetBuiltinsForTest)

	require.NoError(t, RegisterBuiltin("extra", "[CommandListExtra]\nx = 1\n"))
	require.Error(t, RegisterBuiltin("extra", "[CommandListExtra]\n"))
	require.Error(t, RegisterBuiltin("", "[CommandListExtra]\n"))
	require.Error(t, RegisterBuiltin("blank", "  "))

	dir := t.TempDir()
	root := filepath.Join(dir, "d3dx.ini")
	writeFile(t, root, "[Present]\n")
	cfg, _ := load(t, root)
	for _, name := range []string{
		"BuiltInCustomShaderDisableScissorClipping",
		"BuiltInCustomShaderEnableScissorClipping",
		"BuiltInCommandListUnbindAllRenderTargets",
		"CommandListExtra",
	} {
		if _, ok := cfg.Store.Section(name); !ok {
			t.Fatalf("builtin section %s missing", name)
		}
	}
	require.Equal(t, []string{root}, cfg.Store.Files(), "builtins are not files")
}

func TestNamespacedSection(t *testing.T) {
	tests := []struct {
		section, namespace, want string
		renamed                  bool
	}{
		{"TextureOverrideFoo", `Mods\a.ini`, `TextureOverride\Mods\a.ini\Foo`, true},
		{"textureoverridefoo", `Mods\a.ini`, `TextureOverride\Mods\a.ini\foo`, true},
		{"Present", `Mods\a.ini`, "Present", false},
		{"KeyFoo", "", "KeyFoo", false},
	}
	for _, tc := range tests {
		got, renamed := NamespacedSection(tc.section, tc.namespace)
		if got != tc.want || renamed != tc.renamed {
			t.Fatalf("NamespacedSection(%q, %q) = %q, %v; want %q, %v", tc.section, tc.namespace, got, renamed, tc.want, tc.renamed)
		}
	}

	prefix, suffix, ok := SplitNamespacedSection(`CommandList\Mods\a.ini\Foo`, `Mods\a.ini`)
	require.True(t, ok)
	require.Equal(t, "CommandList", prefix)
	require.Equal(t, "Foo", suffix)

	_, _, ok = SplitNamespacedSection("CommandListFoo", `Mods\a.ini`)
	require.False(t, ok)

	require.Equal(t, `Mods\`, SectionDir(`Mods\a.ini`))
	require.Equal(t, "", SectionDir("a.ini"))
	require.Equal(t, `Mods\sub`, NormalizeNamespace("./Mods/x/../sub"))
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Mods", "tex.dds"), "x")

	require.Equal(t, filepath.Join(dir, "Mods", "tex.dds"), ResolvePath(dir, `Mods\a.ini`, "tex.dds"))
	require.Equal(t, filepath.Join(dir, "other.dds"), ResolvePath(dir, `Mods\a.ini`, "other.dds"))
	require.Equal(t, filepath.Join(dir, "Mods", "tex.dds"), ResolvePath(dir, "", `Mods\tex.dds`))
	abs := filepath.Join(dir, "abs.dds")
	require.Equal(t, abs, ResolvePath(dir, `Mods\a.ini`, abs))
	require.Empty(t, ResolvePath(dir, "", "  "))
}

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		glob  string
		match []string
		miss  []string
	}{
		{"DISABLED*", []string{"disabled_mod.ini", "DisabledDir"}, []string{"mod_disabled.ini"}},
		{"?.ini", []string{"a.ini"}, []string{"ab.ini", "a_ini"}},
		{"[!a]*.ini", []string{"b.ini"}, []string{"a.ini"}},
	}
	for _, tc := range tests {
		re, err := globToRegexp(tc.glob)
		require.NoError(t, err, tc.glob)
		for _, name := range tc.match {
			require.True(t, re.MatchString(name), "%s should match %s", tc.glob, name)
		}
		for _, name := range tc.miss {
			require.False(t, re.MatchString(name), "%s should not match %s", tc.glob, name)
		}
	}
	_, err := globToRegexp("[abc")
	require.Error(t, err)
	_, err = globToRegexp(" ")
	require.Error(t, err)
}

func TestSectionTaxonomy(t *testing.T) {
	require.True(t, IsCommandListSection("shaderoverrideabc"))
	require.True(t, IsCommandListSection("Constants"))
	require.False(t, IsCommandListSection("ConstantsX"))
	require.True(t, IsRegularSection("ResourceFoo"))
	require.False(t, IsKnownSection("Mystery"))
	require.True(t, AllowsLinesWithoutEquals("ShaderRegexFoo.Pattern"))
	require.False(t, AllowsLinesWithoutEquals("Hunting"))
	require.True(t, DuplicateKeyAllowed("KeyFoo", "KEY"))
	require.False(t, DuplicateKeyAllowed("KeyFoo", "type"))
	require.True(t, DuplicateKeyAllowed("IncludeFoo", "anything"))
	require.True(t, strings.HasPrefix(fold("ÄBC"), fold("äb")))
}
