package domain

import (
	"fmt"
	"time"
)

// User is a conversation participant. Free users are subject to a message limit.
type User struct {
	UserID    string
	Email     string
	Name      string
	Free      bool
	Paid      bool
	CreatedAt time.Time
}

// NewUser creates a free, unpaid user
func NewUser(userID, email, name string, createdAt time.Time) *User {
	return &User{
		UserID:    userID,
		Email:     email,
		Name:      name,
		Free:      true,
		Paid:      false,
		CreatedAt: createdAt,
	}
}

// ValidateUser validates a User instance
func ValidateUser(u *User) error {
	if u == nil {
		return fmt.Errorf("user cannot be nil")
	}

	if u.UserID == "" {
		return fmt.Errorf("user ID is required")
	}

	if u.Email == "" {
		return fmt.Errorf("user Email is required")
	}

	return nil
}

// Message is one recorded question/answer exchange
type Message struct {
	ID           string
	UserID       string
	UserMessage  string
	AgentMessage string
	CreatedAt    time.Time
}
