package core

import (
	"regexp"
	"strings"
)

var (
	moduleNamePattern = regexp.MustCompile(`^[a-zA-Z_\x{7f}-\x{ff}][a-zA-Z0-9_\x{7f}-\x{ff}]*$`)
	// controller and view names may address sub-paths with '.' or '/'
	pathNamePattern = regexp.MustCompile(`^[a-zA-Z_\x{7f}-\x{ff}][a-zA-Z0-9_\x{7f}-\x{ff}/.]*$`)
)

// ValidModuleName reports whether name is a legal module name.
func ValidModuleName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

// ValidPathName reports whether name is a legal controller or view name.
func ValidPathName(name string) bool {
	return pathNamePattern.MatchString(name)
}

// CheckName validates name for the given kind and returns a *NameError on
// failure.
func CheckName(kind NameKind, name string) error {
	ok := false
	switch kind {
	case NameModule:
		ok = ValidModuleName(name)
	default:
		ok = ValidPathName(name)
	}
	if !ok {
		return &NameError{Kind: kind, Name: name}
	}
	return nil
}

// CanonicalName normalizes a dotted controller or view path into its
// slash separated form, so "Foo.Bar" and "Foo/Bar" address the same entry.
func CanonicalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// ValidatorConfigPath returns the location of the declarative validator
// definitions of a controller relative to the application directory.
func ValidatorConfigPath(module, controller string) string {
	return "modules/" + module + "/validate/" + CanonicalName(controller) + ".yaml"
}
