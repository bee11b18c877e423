// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// IDs are opaque strings (xid) generated by the repository on insert —
// primary keys never come from client input. The email is unique and
// stored exactly as submitted (case-sensitive). PasswordHash is the full
// bcrypt output (salt and cost embedded); the plaintext password is never
// stored or logged.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialized
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
