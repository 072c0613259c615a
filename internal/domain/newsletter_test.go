package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories() {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("").Valid())
	assert.False(t, Category("technology").Valid())
}

func TestNewsletterTags(t *testing.T) {
	n := &Newsletter{Tag: " ai, ml ,, space "}
	assert.Equal(t, []string{"ai", "ml", "space"}, n.Tags())

	n.Tag = NoTagsFormed
	assert.Nil(t, n.Tags())
}

func TestNewsletterDescription(t *testing.T) {
	n := &Newsletter{}
	assert.Empty(t, n.Description())

	n.Sections = []Section{{Subtitle: "a", Paragraph: "first"}, {Subtitle: "b", Paragraph: "second"}}
	assert.Equal(t, "first", n.Description())
}

func TestNewsletterWithDraft(t *testing.T) {
	n := &Newsletter{Title: "Old", Sections: []Section{{Subtitle: "s", Paragraph: "p"}}}
	d := NewDraft(n)
	d.Title = "New"
	d.Sections[0].Paragraph = "edited"

	assert.Equal(t, "p", n.Sections[0].Paragraph, "draft edits must not leak into the document")

	merged := n.WithDraft(d)
	assert.Equal(t, "New", merged.Title)
	assert.Equal(t, "edited", merged.Sections[0].Paragraph)
	assert.Equal(t, "Old", n.Title)
}

func TestNewsletterJSON(t *testing.T) {
	n := &Newsletter{
		ID:        "abc",
		Title:     "T",
		Tag:       "x",
		Category:  CategoryTechnology,
		Date:      Date{Year: 2024, Month: time.March, Day: 9},
		Sections:  []Section{{Subtitle: "s", Paragraph: "p"}},
		ShareLink: "https://n.io/?=T",
	}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","title":"T","tag":"x","category":"Technology","date":"2024-03-09",
		"content":[{"subtitle":"s","paragraph":"p"}]}`, string(raw))
}

func TestDateUnmarshal(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-12-01T18:30:00Z"`), &d))
	assert.Equal(t, "2024-12-01", d.String())

	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &d))
}

func TestWithDraft_BlankTitleKeepsCurrent(t *testing.T) {
	n := &Newsletter{Title: "Keep me"}
	merged := n.WithDraft(&Draft{Title: "   "})
	assert.Equal(t, "Keep me", merged.Title)
}
