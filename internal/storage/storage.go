package storage

import (
	"context"
	"io"
)

// Store is the durable byte store for chunks and finalized recordings,
// isolated per user. Reassembly writes through a temp object and promotes it
// with an atomic rename so readers never observe a partial file.
type Store interface {
	Save(ctx context.Context, userID, name string, r io.Reader) (written int64, err error)
	Open(ctx context.Context, userID, name string) (rc io.ReadSeekCloser, size int64, err error)
	Exists(ctx context.Context, userID, name string) (bool, error)
	Remove(ctx context.Context, userID, name string) error

	CreateTemp(ctx context.Context, userID string) (w io.WriteCloser, tempName string, err error)
	Promote(ctx context.Context, userID, tempName, finalName string) error
	Discard(ctx context.Context, userID, tempName string) error
}

// Archiver mirrors finalized recordings to secondary storage. Archive
// failures are best-effort: logged by callers, never fatal.
type Archiver interface {
	Archive(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}
