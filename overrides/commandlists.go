package overrides

import "github.com/timzifer/d3dxini/commandlist"

var explicitListPrefixes = []string{"BuiltInCommandList", "CommandList"}

func (b *builder) enumerateCommandLists() {
	for _, prefix := range explicitListPrefixes {
		for _, sec := range b.store.WithPrefix(prefix) {
			b.reg.CommandLists[key(sec.Name)] = commandlist.NewSubList(sec.Name, commandlist.KindCommandList)
		}
	}
}

func (b *builder) parseCommandLists() {
	for _, prefix := range explicitListPrefixes {
		for _, sec := range b.store.WithPrefix(prefix) {
			b.compile(sec, b.reg.CommandLists[key(sec.Name)], nil)
		}
	}
}
