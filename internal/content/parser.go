// Package content turns free-form generated text into a structured
// newsletter and derives the values that hang off it (share link, prompt).
//
// Generated text is untrusted: the provider is asked to bracket the title in
// *single*, subtitles in **double**, paragraphs in ***triple*** and the tag
// list in ****quadruple**** asterisks, but nothing guarantees it complies.
// Parse therefore never fails; missing pieces fall back to sentinel values.
package content

import (
	"time"

	"github.com/google/uuid"
	"github.com/ignite/newsletter-ai/internal/domain"
)

// Parse extracts a newsletter from raw generated text. The category is
// passed through untouched and the date is the calendar date of now.
func Parse(raw string, category domain.Category, now time.Time) *domain.Newsletter {
	sc := newScanner(raw)

	doc := &domain.Newsletter{
		ID:       uuid.New().String(),
		Title:    domain.UntitledTitle,
		Tag:      domain.NoTagsFormed,
		Category: category,
		Date:     domain.DateOf(now),
		Sections: []domain.Section{},
	}

	if title, ok := sc.enclosed("*"); ok {
		if title = trim(title); title != "" {
			doc.Title = title
		}
	}
	if tag, ok := sc.enclosed("****"); ok {
		if tag = trim(tag); tag != "" {
			doc.Tag = tag
		}
	}
	for _, m := range sc.sections() {
		doc.Sections = append(doc.Sections, domain.Section{
			Subtitle:  trim(m.subtitle),
			Paragraph: trim(m.paragraph),
		})
	}

	return doc
}
