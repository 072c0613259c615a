package archive

import (
	"context"

	"github.com/ignite/newsletter-ai/internal/domain"
)

// Repository defines the data access contract for saved newsletters.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Save inserts or replaces the newsletter with doc.ID, sections included.
	Save(ctx context.Context, doc *domain.Newsletter) error

	// Get returns one newsletter. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Newsletter, error)

	// FindByTitle returns the most recently saved newsletter with exactly
	// this title. Returns ErrNotFound if there is none.
	FindByTitle(ctx context.Context, title string) (*domain.Newsletter, error)

	// List returns newsletters matching the filter, newest first, and the
	// total number of matches.
	List(ctx context.Context, filter ListFilter) ([]domain.Newsletter, int, error)
}

// ListFilter controls pagination and filtering for newsletter lists.
type ListFilter struct {
	Category domain.Category
	Limit    int
	Offset   int
}
