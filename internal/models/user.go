package models

// User is an operator allowed to manage devices through the API.
type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never serialized
}
