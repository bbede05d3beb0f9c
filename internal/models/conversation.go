package models

import "time"

// Conversation is either a group conversation or a direct conversation
// between exactly two users. Direct conversation ids are deterministic:
// both participant ids sorted lexicographically and joined by "_".
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is the directory row consulted for existence checks, display
// names and push tokens. Account management lives in another service.
type User struct {
	ID          string    `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
