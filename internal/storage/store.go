package storage

import (
	"context"
	"errors"
	"io"
)

var ErrNoStore = errors.New("artifact store not configured")

// Store persists booking artifacts: payment proof images and signed
// consent documents. The returned ref is an opaque object key recorded
// on the ledger or appointment, never a public URL.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Disabled is wired when no object storage endpoint is configured.
// Uploads fail but artifact refs supplied by the client still flow.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrNoStore
}
