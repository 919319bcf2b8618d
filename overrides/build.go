package overrides

import (
	"github.com/rs/zerolog"

	"github.com/timzifer/d3dxini/commandlist"
	"github.com/timzifer/d3dxini/config"
	"github.com/timzifer/d3dxini/internal/diag"
	"github.com/timzifer/d3dxini/variables"
)

type buildOptions struct {
	diag *diag.Collector
}

// Option customises Build.
type Option func(*buildOptions)

// WithDiagnostics routes content warnings into collector.
func WithDiagnostics(collector *diag.Collector) Option {
	return func(o *buildOptions) { o.diag = collector }
}

type builder struct {
	cfg      *config.Config
	store    *config.Store
	vars     *variables.Table
	diag     *diag.Collector
	log      zerolog.Logger
	reg      *Registries
	compiler *commandlist.Compiler
}

// Build compiles every override, named section and hook of cfg, declaring
// globals in vars. Content problems are reported to the diagnostics collector
// and never abort the build.
//
// Sections that can be referenced by run= are enumerated before anything is
// compiled, so reference resolution does not depend on the parse order.
// Resources are parsed before any command list and [Constants] before any key,
// preset or command list that may use its globals.
func Build(cfg *config.Config, vars *variables.Table, opts ...Option) *Registries {
	o := buildOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if vars == nil {
		vars = variables.NewTable()
	}

	b := &builder{
		cfg:   cfg,
		store: cfg.Store,
		vars:  vars,
		diag:  o.diag,
		log:   o.diag.Logger(),
		reg:   newRegistries(vars),
	}
	b.compiler = commandlist.NewCompiler(vars,
		commandlist.WithEnvironment(b.reg),
		commandlist.WithRoster(b.reg.Roster),
		commandlist.WithDiagnostics(o.diag),
		commandlist.WithUserEntries(cfg.IsUserEntry),
	)

	b.enumerateCustomShaders()
	b.enumerateCommandLists()
	b.enumeratePresets()

	b.parseResources()
	b.parseConstants()

	b.parseKeys()
	b.parsePresets()

	b.parseCustomShaders()
	b.parseCommandLists()

	b.parseShaderOverrides()
	b.parseShaderRegex()
	b.parseTextureOverrides()

	b.parseHooks()
	b.reg.Profile = append([]string(nil), cfg.Profile...)

	b.log.Debug().Interface("counts", b.reg.Counts()).Msg("registries built")
	return b.reg
}

func (b *builder) reader(sec *config.Section) reader {
	return reader{sec: sec, diag: b.diag}
}

// compile compiles sec into both lists of sub with the default options.
func (b *builder) compile(sec *config.Section, sub *commandlist.SubList, whitelist []string) {
	b.compiler.Compile(sec, sub.Pre, sub.Post, commandlist.CompileOptions{Whitelist: whitelist})
}

func (b *builder) parseHooks() {
	for _, name := range HookSections {
		sub := commandlist.NewSubList(name, commandlist.KindCommandList)
		b.reg.Hooks[key(name)] = sub
		if sec, ok := b.store.Section(name); ok {
			b.compile(sec, sub, nil)
		}
	}
}
