package vectorstore

import "errors"

// Construction errors. Runtime operations never return errors; see the
// package documentation.
var (
	errNilPool     = errors.New("pool is required")
	errNilEmbedder = errors.New("embedder is required")
)
