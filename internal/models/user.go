package models

// User represents an account that can sign in to the wiki.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Roles        []string
}
