package diag

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// Warning codes emitted while loading and compiling a configuration.
const (
	CodeUnknownSection     = "ini.unknown_section"
	CodeDuplicateKey       = "ini.duplicate_key"
	CodeOutsideSection     = "ini.outside_section"
	CodeMissingEquals      = "ini.missing_equals"
	CodeIncludeRepeated    = "include.repeated"
	CodeIncludeMissing     = "include.missing"
	CodeIncludeCondition   = "include.condition"
	CodeIncludeUnknownKey  = "include.unknown_key"
	CodeExcludePattern     = "include.exclude_pattern"
	CodeUnrecognisedLine   = "commandlist.unrecognised"
	CodeMalformedCommand   = "commandlist.malformed"
	CodeUnbalancedScope    = "commandlist.unbalanced_scope"
	CodeDuplicateSetting   = "commandlist.duplicate_setting"
	CodeInvalidVariable    = "variable.invalid"
	CodeRedeclaredVariable = "variable.redeclared"
	CodeMissingHash        = "override.missing_hash"
	CodeInvalidValue       = "override.invalid_value"
	CodeDuplicateHash      = "override.duplicate_hash"
	CodeFuzzyMatch         = "override.fuzzy_match"
	CodeShaderRegex        = "override.shader_regex"
	CodeMissingFile        = "override.missing_file"
	CodeDeprecated         = "override.deprecated"
	CodeLogging            = "engine.logging"
	CodeRuntime            = "engine.runtime"
	CodeUserFile           = "engine.user_file"
)

// Warning is a recoverable content problem found during a (re)load.
type Warning struct {
	Code      string
	Message   string
	Timestamp time.Time
}

// Collector accumulates warnings for a single load and logs each of them.
type Collector struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	warnings []Warning
}

// NewCollector creates a collector logging through logger.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{logger: logger}
}

// Warnf records a warning. It is safe to call on a nil collector.
func (c *Collector) Warnf(code, format string, args ...interface{}) {
	if c == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.mu.Lock()
	c.warnings = append(c.warnings, Warning{Code: code, Message: msg, Timestamp: time.Now()})
	c.mu.Unlock()
	c.logger.Warn().Str("code", code).Msg(msg)
}

// Noticef logs an informational notice that does not count as a warning.
func (c *Collector) Noticef(code, format string, args ...interface{}) {
	if c == nil {
		return
	}
	c.logger.Info().Str("code", code).Msgf(format, args...)
}

// Logger exposes the logger used by the collector.
func (c *Collector) Logger() zerolog.Logger {
	if c == nil {
		return zerolog.Nop()
	}
	return c.logger
}

// Count returns the number of recorded warnings.
func (c *Collector) Count() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.warnings)
}

// Warnings returns a copy of all recorded warnings in emission order.
func (c *Collector) Warnings() []Warning {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}

// CountCode returns how many warnings carry the given code.
func (c *Collector) CountCode(code string) int {
	count := 0
	for _, w := range c.Warnings() {
		if w.Code == code {
			count++
		}
	}
	return count
}

// Notifier receives the end-of-reload summary.
type Notifier interface {
	Notify(warnings int)
}

// Flush hands the warning count to the notifier once. Nothing is signalled when
// the load was clean.
func (c *Collector) Flush(n Notifier) {
	count := c.Count()
	if count == 0 || n == nil {
		return
	}
	n.Notify(count)
}

type noopNotifier struct{}

// NoopNotifier discards notifications.
func NoopNotifier() Notifier { return noopNotifier{} }

func (noopNotifier) Notify(int) {}

// BellNotifier rings the terminal bell when the output is a terminal.
type BellNotifier struct {
	Out io.Writer
}

// NewBellNotifier returns a notifier writing to stderr.
func NewBellNotifier() *BellNotifier {
	return &BellNotifier{Out: os.Stderr}
}

// Notify writes a single bell character.
func (b *BellNotifier) Notify(warnings int) {
	if b == nil || b.Out == nil || warnings == 0 {
		return
	}
	if f, ok := b.Out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return
	}
	_, _ = io.WriteString(b.Out, "\a")
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(warnings int)

// Notify calls f.
func (f NotifierFunc) Notify(warnings int) { f(warnings) }
