package kv

import (
	"fmt"

	"github.com/arloliu/creport/internal/hash"
)

// keyspace builds the keys of one report.
type keyspace struct {
	base string
}

func newKeyspace(name string) keyspace {
	return keyspace{base: fmt.Sprintf("creport:%016x:", hash.ID(name))}
}

func (k keyspace) prefix() []byte {
	return []byte(k.base)
}

func (k keyspace) header() []byte {
	return []byte(k.base + "header")
}

func (k keyspace) gidPrefix() []byte {
	return []byte(k.base + "gid:")
}

func (k keyspace) gid(gid uint32) []byte {
	return fmt.Appendf(nil, "%sgid:%010d", k.base, gid)
}

func (k keyspace) frame(idx int, gid uint32) []byte {
	return fmt.Appendf(nil, "%sframe:%010d:%010d", k.base, idx, gid)
}
