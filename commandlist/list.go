package commandlist

import (
	"strings"
	"sync"
)

// Phase selects which side of the triggering event a list runs on.
type Phase int

const (
	Pre Phase = iota
	Post
)

func (p Phase) String() string {
	if p == Post {
		return "post"
	}
	return "pre"
}

// CommandList is the compiled, executable form of one side of a section.
type CommandList struct {
	Section string
	Phase   Phase
	Ops     []Op
	// Locals is the number of local variable slots the list needs.
	Locals int
}

// New returns an empty list for section.
func New(section string, phase Phase) *CommandList {
	return &CommandList{Section: section, Phase: phase}
}

// Empty reports whether the list has no operations.
func (l *CommandList) Empty() bool {
	return l == nil || len(l.Ops) == 0
}

// Len returns the number of compiled operations.
func (l *CommandList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Ops)
}

// Lines renders the list one op per line, mainly for dumps and tests.
func (l *CommandList) Lines() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.Ops))
	for _, op := range l.Ops {
		out = append(out, op.String())
	}
	return out
}

func (l *CommandList) String() string {
	return strings.Join(l.Lines(), "\n")
}

// Kind tells how a run= target is executed.
type Kind int

const (
	KindCommandList Kind = iota
	KindCustomShader
)

// SubList is a section that can be the target of run=. Its address is stable
// for the lifetime of a configuration, so it is created before any section
// referencing it is compiled.
type SubList struct {
	Section string
	Kind    Kind
	Pre     *CommandList
	Post    *CommandList
}

// NewSubList allocates a sub list with empty pre and post lists.
func NewSubList(section string, kind Kind) *SubList {
	return &SubList{
		Section: section,
		Kind:    kind,
		Pre:     New(section, Pre),
		Post:    New(section, Post),
	}
}

// List returns the side of the sub list matching phase.
func (s *SubList) List(phase Phase) *CommandList {
	if phase == Post {
		return s.Post
	}
	return s.Pre
}

// Roster collects every compiled list of a configuration for later passes.
type Roster struct {
	mu    sync.Mutex
	lists []*CommandList
}

// NewRoster returns an empty roster.
func NewRoster() *Roster {
	return &Roster{}
}

// Register appends lists to the roster. Nil lists are ignored.
func (r *Roster) Register(lists ...*CommandList) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range lists {
		if l != nil {
			r.lists = append(r.lists, l)
		}
	}
}

// Lists returns the registered lists in registration order.
func (r *Roster) Lists() []*CommandList {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*CommandList(nil), r.lists...)
}

// Len returns the number of registered lists.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lists)
}

// OpCount returns the total number of operations across all registered lists.
func (r *Roster) OpCount() int {
	total := 0
	for _, l := range r.Lists() {
		total += l.Len()
	}
	return total
}
