package model

import "time"

// Blog is a post owned by exactly one user.
//
// Likes is ordered by the time each like was made. The storage layer keeps it
// a set (one row per blog/user pair), so a user id never appears twice.
type Blog struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	UserID      string     `json:"user"`
	Likes       []string   `json:"likes"`
	Tags        []string   `json:"tags"`
	Views       int64      `json:"views"`
	IsPublished bool       `json:"isPublished"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// LikedBy reports whether userID is in the likes list.
func (b *Blog) LikedBy(userID string) bool {
	for _, id := range b.Likes {
		if id == userID {
			return true
		}
	}
	return false
}
