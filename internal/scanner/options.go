package scanner

// Options configures the Scanner's bulk-enumeration behavior.
type Options struct {
	// BatchSize is the number of entries accumulated locally before a
	// walk worker flushes via Index.InsertMany. The spec calls for
	// 32768; individual per-entry commits would dominate CPU.
	BatchSize int

	// RejectNestedRoots makes addRoot return ParentAlreadyAdded when
	// the candidate path is a descendant or an ancestor of an
	// already-registered root, preventing double-indexing.
	RejectNestedRoots bool

	// RespectIgnoreFiles makes the walker consult .locatefsignore at
	// the root of each walked tree.
	RespectIgnoreFiles bool
}

// DefaultOptions returns the spec-mandated defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:          32768,
		RejectNestedRoots:  true,
		RespectIgnoreFiles: true,
	}
}
