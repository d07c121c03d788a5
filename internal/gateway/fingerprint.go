package gateway

import (
	"github.com/zeebo/blake3"

	"github.com/openafpm/cadstream/internal/cache"
)

// Fingerprint digests op, assembly, and the canonical encoding of p into a
// cache.Key. op and assembly are mixed in ahead of the parameter bytes so
// that two different build operations (or the same operation against two
// different assemblies) never collide on an empty or identical parameter
// set — without them, e.g. a bare /cncOverview/stream and a bare
// /dimensionTables/stream request would canonicalize to the same `{}` and
// be handed each other's cached result. Equal (op, assembly, canonical
// form) always produce equal fingerprints, by construction of
// Params.Canonical and blake3's determinism.
func Fingerprint(op, assembly string, p Params) cache.Key {
	h := blake3.New()
	_, _ = h.Write([]byte(op))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(assembly))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(p.Canonical())
	var sum cache.Key
	copy(sum[:], h.Sum(nil))
	return sum
}
