package models

// User represents a platform user; Role decides which operations the
// middleware lets through.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Not serialized
	Role         Role   `json:"role"`
	CreatedAt    string `json:"created_at"`
}
