package report

import "strings"

// Source is a parsed report location.
//
//	/data/sim.h5d          -> {Path: "/data/sim.h5d"}
//	kv:///data/store#soma  -> {Scheme: "kv", Path: "/data/store", Name: "soma"}
//	null://                -> {Scheme: "null"}
type Source struct {
	Scheme string
	Path   string
	Name   string
}

// ParseSource splits a report location into scheme, path and fragment name.
// Plain filesystem paths have an empty scheme and keep any '#' in the path.
func ParseSource(source string) Source {
	scheme, rest, ok := strings.Cut(source, "://")
	if !ok || scheme == "" || strings.ContainsAny(scheme, `/\`) {
		return Source{Path: source}
	}

	path, name, _ := strings.Cut(rest, "#")

	return Source{Scheme: strings.ToLower(scheme), Path: path, Name: name}
}

// HasScheme reports whether the source uses scheme, case-insensitively.
func (s Source) HasScheme(scheme string) bool {
	return strings.EqualFold(s.Scheme, scheme)
}
