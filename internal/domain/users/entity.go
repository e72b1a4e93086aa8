package users

import "time"

// ID identifies a user.
type ID string

// User is an account holder.
type User struct {
	ID           ID        `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	PasswordHash string    `json:"-" bson:"password"`
	FirstName    string    `json:"firstName" bson:"firstName"`
	LastName     string    `json:"lastName" bson:"lastName"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	IsActive     bool      `json:"isActive" bson:"isActive"`
}

// Identity is what a validated session token proves about its bearer.
type Identity struct {
	Email  string
	UserID ID
}
