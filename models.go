package main

import "time"

// Profile represents a user profile in the system
type Profile struct {
	InternalID  string       `json:"internalId"`
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Firehearts  int          `json:"firehearts"`
	Image       ProfileImage `json:"image"`
	LastEdited  time.Time    `json:"lastEdited"`
	YearOfStudy int          `json:"yearOfStudy"`
}

// ProfileImage is the stored image reference plus its blurhash placeholder
type ProfileImage struct {
	URL      string `json:"url"`
	Blurhash string `json:"blurhash"`
}

// RefreshCredential is a persisted refresh token
type RefreshCredential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"-"`
}

// RankedProfile is a profile annotated with its 1-based leaderboard rank
type RankedProfile struct {
	Profile
	Rank int `json:"rank"`
}

// profilePatch carries a partial update; nil fields are left unchanged
type profilePatch struct {
	Name        *string       `json:"name"`
	Image       *ProfileImage `json:"image"`
	YearOfStudy *int          `json:"yearOfStudy"`
}

const (
	defaultFirehearts = 600
	// incrementLimit bounds a single firehearts delta in either direction
	incrementLimit = 20
)
