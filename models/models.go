package models

import (
	"sort"
	"strconv"
	"time"
)

// DefaultLanguage is assumed for posts that carry no language tag
const DefaultLanguage = "en"

// Post is a single post fetched from the watched account
type Post struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	RichText  *string   `json:"richText,omitempty"` // Extended text, overrides Text when present
	CreatedAt time.Time `json:"createdAt"`
	Language  string    `json:"language"`
	Author    string    `json:"author,omitempty"`
	Permalink string    `json:"permalink,omitempty"` // Set by backends whose URLs are not derived from the id
}

// EffectiveText returns the extended text if the source provided one
func (p Post) EffectiveText() string {
	if p.RichText != nil && *p.RichText != "" {
		return *p.RichText
	}
	return p.Text
}

// SortAscending orders posts oldest first by numeric id
func SortAscending(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
}

// SortDescending orders posts newest first by numeric id
func SortDescending(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].ID > posts[j].ID })
}

// FixturePost is the on-disk shape of a recorded post
type FixturePost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// NumericID parses the fixture id, returning 0 for malformed ids
func (f FixturePost) NumericID() int64 {
	id, err := strconv.ParseInt(f.ID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// ToFixture converts a post into its recorded form
func (p Post) ToFixture() FixturePost {
	return FixturePost{
		ID:        strconv.FormatInt(p.ID, 10),
		Text:      p.EffectiveText(),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Delivery is a journal entry for a post that reached the webhook
type Delivery struct {
	Id          int64     `json:"id"`
	AccountID   string    `json:"accountId"`
	PostID      int64     `json:"postId"`
	DeliveredAt time.Time `json:"deliveredAt"`
	Content     string    `json:"content"`
}
