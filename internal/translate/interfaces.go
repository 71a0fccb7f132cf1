package translate

import (
	"context"
	"io"
	"time"
)

// ChunkSource yields chunks in order. Implementations are not safe for concurrent use.
type ChunkSource interface {
	Next() (Chunk, error)
}

// ChunkPuller hands out chunks to concurrent callers.
type ChunkPuller interface {
	Next(ctx context.Context) (Chunk, error)
}

// Submitter sends one chunk to the remote workflow and returns its outputs.
type Submitter interface {
	Submit(ctx context.Context, req Request) (map[string]any, error)
}

// Queue provides enqueue/dequeue semantics for worker messages.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context) (Message, error)
}

// Window bounds how many chunks may be pulled but not yet delivered.
type Window interface {
	Acquire(ctx context.Context) error
	Release()
}

// Store persists sequenced results.
type Store interface {
	AppendTranslation(ctx context.Context, base string, langs Langs, text string) error
	RewriteTerminology(ctx context.Context, base string, term string) error
	RewriteCursor(ctx context.Context, base string, cursor Cursor) error
}

// BlobStore writes finished artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications keyed by run ID.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) (string, error)
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
