// Package store names the persistence contract the application runs on.
package store

import (
	"context"
	"io"

	"urlitrim/internal/core"
)

// Store is a core.Store the application can health-check and shut down.
type Store interface {
	core.Store
	io.Closer

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
}
