package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/timzifer/d3dxini/commandlist"
)

// presetExecutor intercepts preset= and exclude_preset= and forwards every
// other host operation.
type presetExecutor struct {
	commandlist.Executor
	engine *Engine
}

func (p presetExecutor) General(ctx context.Context, op *commandlist.GeneralOp) error {
	switch op.Verb {
	case "preset":
		p.engine.triggers[op.Value]++
		return nil
	case "exclude_preset":
		p.engine.excluded[op.Value] = true
		return nil
	}
	return p.Executor.General(ctx, op)
}

// EndFrame activates every preset triggered since the previous call that was
// not excluded and collected at least unique_triggers_required triggers. It
// returns the activated sections in order.
func (e *Engine) EndFrame(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil, fmt.Errorf("engine not initialized")
	}

	names := make([]string, 0, len(e.triggers))
	for name := range e.triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	counts := make(map[string]int, len(e.triggers))
	for name, n := range e.triggers {
		counts[name] = n
	}
	excluded := make(map[string]bool, len(e.excluded))
	for name := range e.excluded {
		excluded[name] = true
	}
	clear(e.triggers)
	clear(e.excluded)

	state := e.stateLocked()
	var activated []string
	for _, name := range names {
		if excluded[name] {
			continue
		}
		preset, ok := e.current.Registries.LookupPreset(name)
		if !ok {
			continue
		}
		if counts[name] < max(1, preset.UniqueTriggersRequired) {
			continue
		}
		applied, err := preset.Activate(ctx, state, 0)
		if err != nil {
			return activated, err
		}
		if applied {
			activated = append(activated, preset.Section)
		}
	}
	return activated, nil
}
