package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

const coreBuiltinSections = `[BuiltInCustomShaderDisableScissorClipping]
scissor_enable = false
rasterizer_state_merge = true
draw = from_caller
handling = skip

[BuiltInCustomShaderEnableScissorClipping]
scissor_enable = true
rasterizer_state_merge = true
draw = from_caller
handling = skip

[BuiltInCommandListUnbindAllRenderTargets]
o0 = null
o1 = null
o2 = null
o3 = null
o4 = null
o5 = null
o6 = null
o7 = null
oD = null
`

var (
	builtinMu    sync.RWMutex
	builtins     = make(map[string]string)
	builtinOrder []string
)

// BuiltinSource is a named block of ini text injected before includes are processed.
type BuiltinSource struct {
	Name string
	Text string
}

func init() {
	if err := RegisterBuiltin("core", coreBuiltinSections); err != nil {
		panic(err)
	}
}

// RegisterBuiltin registers ini text that is parsed into every configuration
// right after the root file.
func RegisterBuiltin(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("builtin name must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("builtin %s must not be empty", name)
	}
	builtinMu.Lock()
	defer builtinMu.Unlock()
	if _, exists := builtins[name]; exists {
		return fmt.Errorf("builtin %s already registered", name)
	}
	builtins[name] = text
	builtinOrder = append(builtinOrder, name)
	return nil
}

// Builtins returns the registered builtin sources in registration order.
func Builtins() []BuiltinSource {
	builtinMu.RLock()
	defer builtinMu.RUnlock()
	out := make([]BuiltinSource, 0, len(builtinOrder))
	for _, name := range builtinOrder {
		out = append(out, BuiltinSource{Name: name, Text: builtins[name]})
	}
	return out
}

// ResetBuiltinsForTest restores the builtin registry to the core sections only.
func ResetBuiltinsForTest() {
	builtinMu.Lock()
	builtins = map[string]string{"core": coreBuiltinSections}
	builtinOrder = []string{"core"}
	builtinMu.Unlock()
}
