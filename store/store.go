// Package store provides the presence registries backing the dispatch and
// execution ledgers. Registries are append-only: keys are set once and
// never cleared or compacted.
package store

import (
	"context"

	"github.com/GenerationSoftware/ERC5164/protocol"
)

// FlagStore records which keys have been seen. Put is the atomic
// check-and-set both ledgers rely on for exactly-once semantics: of two
// concurrent Puts for the same key, exactly one observes already=false.
type FlagStore interface {
	// Put marks the key and reports whether it was already marked.
	Put(ctx context.Context, key protocol.Bytes32) (already bool, err error)
	// Has reports whether the key is marked.
	Has(ctx context.Context, key protocol.Bytes32) (bool, error)
}
