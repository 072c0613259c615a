package workflow

import (
	"context"
	"time"

	"github.com/ignite/newsletter-ai/internal/domain"
)

// ReferenceFetcher returns the reference text behind a URL.
type ReferenceFetcher interface {
	FetchReference(ctx context.Context, url string) (string, error)
}

// Generator turns a prompt plus reference context into free text that is
// expected, but not guaranteed, to follow the newsletter marker grammar.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Persister stores a newsletter. A code of 200 means success; any other
// code is a failure even when err is nil.
type Persister interface {
	Persist(ctx context.Context, doc *domain.Newsletter) (int, error)
}

// Dispatcher sends the newsletter announcement to its recipients and
// returns a human-readable status.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.EmailRequest) (string, error)
}

// SessionStore shares session snapshots between server processes. Load
// reports false when no snapshot exists for id.
type SessionStore interface {
	Load(ctx context.Context, id string) (Session, bool, error)
	Store(ctx context.Context, s Session, ttl time.Duration) error
}

// Dependencies bundles the collaborators a Controller calls out to.
type Dependencies struct {
	Reference  ReferenceFetcher
	Generator  Generator
	Persister  Persister
	Dispatcher Dispatcher
}
