package config

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// NamespaceSeparator separates namespace path components as well as the
// prefix, namespace and suffix of a namespaced section name.
const NamespaceSeparator = `\`

// NormalizeNamespace converts a relative path into namespace form.
func NormalizeNamespace(rel string) string {
	rel = strings.ReplaceAll(rel, `\`, "/")
	rel = path.Clean(rel)
	if rel == "." || rel == "/" {
		return ""
	}
	rel = strings.TrimPrefix(rel, "/")
	return strings.ReplaceAll(rel, "/", NamespaceSeparator)
}

// NamespacedSection rewrites a section name read from a namespaced file into
// <prefix>\<namespace>\<suffix>. Sections that are not prefix-type and the root
// namespace are left untouched.
func NamespacedSection(section, namespace string) (string, bool) {
	if namespace == "" {
		return section, false
	}
	prefix, ok := SectionPrefix(section)
	if !ok {
		return section, false
	}
	return prefix + NamespaceSeparator + namespace + NamespaceSeparator + section[len(prefix):], true
}

// SplitNamespacedSection returns the prefix, namespace and suffix of a
// namespaced section name. ok is false for names without a namespace.
func SplitNamespacedSection(section, namespace string) (prefix, suffix string, ok bool) {
	if namespace == "" {
		return "", section, false
	}
	p, found := SectionPrefix(section)
	if !found {
		return "", section, false
	}
	head := p + NamespaceSeparator + namespace + NamespaceSeparator
	if len(section) < len(head) || !strings.EqualFold(section[:len(head)], head) {
		return "", section, false
	}
	return section[:len(p)], section[len(head):], true
}

// SectionDir returns the namespace directory (with trailing separator) of the
// file a namespace refers to. The root namespace yields "".
func SectionDir(namespace string) string {
	idx := strings.LastIndex(namespace, NamespaceSeparator)
	if idx < 0 {
		return ""
	}
	return namespace[:idx+1]
}

// NamespacePath converts a namespace relative path into an OS path below root.
func NamespacePath(root, rel string) string {
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(rel, NamespaceSeparator, "/")))
}

// ResolvePath resolves a file referenced from a section in namespace: first
// relative to the namespace directory, then relative to the root directory.
// Absolute paths are returned unchanged.
func ResolvePath(root, namespace, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	native := filepath.FromSlash(strings.ReplaceAll(value, NamespaceSeparator, "/"))
	if filepath.IsAbs(native) {
		return native
	}
	if dir := SectionDir(namespace); dir != "" {
		candidate := NamespacePath(root, dir+value)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(root, native)
}
