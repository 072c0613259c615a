package domain

import "strings"

// Sentinel values substituted when generated text lacks the expected markers.
const (
	UntitledTitle = "Untitled"
	NoTagsFormed  = "No tags formed"
)

// Category is the editorial category chosen before generation starts.
type Category string

const (
	CategoryTechnology    Category = "Technology"
	CategorySpaceResearch Category = "Space research"
	CategoryNewInnovation Category = "New innovation"
	CategoryWebTechnology Category = "Web technology"
)

// Categories returns the fixed category set in display order.
func Categories() []Category {
	return []Category{
		CategoryTechnology,
		CategorySpaceResearch,
		CategoryNewInnovation,
		CategoryWebTechnology,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Section is one subtitle/paragraph pair of a newsletter.
type Section struct {
	Subtitle  string `json:"subtitle"`
	Paragraph string `json:"paragraph"`
}

// Newsletter is the structured document produced from generated text.
// The JSON shape is the persistence request body.
type Newsletter struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Tag      string    `json:"tag"`
	Category Category  `json:"category"`
	Date     Date      `json:"date"`
	Sections []Section `json:"content"`

	// ShareLink is derived from Title and never sent to the persistence service.
	ShareLink string `json:"-"`
}

// Tags splits the comma-separated tag field into trimmed labels.
// Returns nil when no tags were formed.
func (n *Newsletter) Tags() []string {
	if n.Tag == "" || n.Tag == NoTagsFormed {
		return nil
	}
	parts := strings.Split(n.Tag, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// Description returns the first section's paragraph, used as the email teaser.
func (n *Newsletter) Description() string {
	if len(n.Sections) == 0 {
		return ""
	}
	return n.Sections[0].Paragraph
}

// Clone returns a deep copy so callers can mutate sections freely.
func (n *Newsletter) Clone() *Newsletter {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Sections = append(make([]Section, 0, len(n.Sections)), n.Sections...)
	return &cp
}

// WithDraft returns a copy of n carrying the draft's title and sections.
// A blank draft title keeps the current one.
func (n *Newsletter) WithDraft(d *Draft) *Newsletter {
	cp := n.Clone()
	if d == nil {
		return cp
	}
	if strings.TrimSpace(d.Title) != "" {
		cp.Title = d.Title
	}
	cp.Sections = append(make([]Section, 0, len(d.Sections)), d.Sections...)
	return cp
}

// Draft is the editable snapshot taken when an edit session starts.
type Draft struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// NewDraft snapshots the editable fields of n.
func NewDraft(n *Newsletter) *Draft {
	return &Draft{
		Title:    n.Title,
		Sections: append(make([]Section, 0, len(n.Sections)), n.Sections...),
	}
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	return &Draft{
		Title:    d.Title,
		Sections: append(make([]Section, 0, len(d.Sections)), d.Sections...),
	}
}
