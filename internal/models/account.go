package models

import "time"

// Account is a tracked creator account on the source platform, paired
// with the destination channel credential used to republish its videos.
type Account struct {
	ID          string    `json:"id" badgerhold:"key"`
	DisplayName string    `json:"display_name" validate:"required"`
	SecUID      string    `json:"sec_uid" validate:"required"` // Source platform profile identifier
	Email       string    `json:"email" validate:"omitempty,email"`
	// RefreshToken is the destination OAuth refresh token. Empty means the
	// account has not completed the consent flow and is skipped by polling.
	RefreshToken string    `json:"-" toml:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Eligible reports whether the account can be polled for new videos.
func (a *Account) Eligible() bool {
	return a.RefreshToken != ""
}
