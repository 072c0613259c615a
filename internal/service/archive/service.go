package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Service implements newsletter archive logic on top of a Repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an archive service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Persist saves doc and reports the outcome as an HTTP-style code, the way
// the base API does: 200 stored, 400 rejected, 500 storage failure.
func (s *Service) Persist(ctx context.Context, doc *domain.Newsletter) (int, error) {
	if err := validate(doc); err != nil {
		return http.StatusBadRequest, err
	}

	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Date.IsZero() {
		stored.Date = domain.DateOf(s.now())
	}
	if stored.Sections == nil {
		stored.Sections = []domain.Section{}
	}

	if err := s.repo.Save(ctx, stored); err != nil {
		return http.StatusInternalServerError, fmt.Errorf("save newsletter %s: %w", stored.ID, err)
	}
	logger.Info("archive: newsletter saved", "id", stored.ID, "category", stored.Category, "sections", len(stored.Sections))
	return http.StatusOK, nil
}

func validate(doc *domain.Newsletter) error {
	switch {
	case doc == nil:
		return fmt.Errorf("%w: no document", ErrInvalidDocument)
	case !doc.Category.Valid():
		return fmt.Errorf("%w: unknown category %q", ErrInvalidDocument, doc.Category)
	case strings.TrimSpace(doc.Title) == "":
		return fmt.Errorf("%w: title is required", ErrInvalidDocument)
	}
	return nil
}

// Get returns a single newsletter.
func (s *Service) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	return s.repo.Get(ctx, id)
}

// FindByTitle resolves a share link's title to the newsletter it names.
func (s *Service) FindByTitle(ctx context.Context, title string) (*domain.Newsletter, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrNotFound
	}
	return s.repo.FindByTitle(ctx, title)
}

// List returns newsletters matching the filter with the limit clamped.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.Newsletter, int, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown category %q", ErrInvalidDocument, f.Category)
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, 0, err
	}
	return items, total, nil
}
