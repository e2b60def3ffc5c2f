// Package domain contains entity meta-data without logic.
package domain

import (
	"errors"
	"time"
)

const MaxDisplayNameLen = 64

var (
	ErrDisplayNameEmpty   = errors.New("display name empty")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

type (
	UserID       string
	ConnectionID string
)

// Connection is transport meta only. The socket adapter owns the
// underlying resource; registries merely index it.
type Connection struct {
	ID            ConnectionID `json:"id"`
	UserID        UserID       `json:"user_id"`
	EstablishedAt time.Time    `json:"established_at"`
}

type User struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name"`
}

func NewUser(id UserID, displayName string) (*User, error) {
	if err := validateDisplayName(displayName); err != nil {
		return nil, err
	}
	return &User{ID: id, DisplayName: displayName}, nil
}

func validateDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	return nil
}
