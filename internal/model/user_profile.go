package model

import "time"

// UserProfile maps a source-control username to the address reports are sent to.
type UserProfile struct {
	GithubUsername string    `json:"githubUsername"`
	Email          string    `json:"email"`
	CreatedAt      time.Time `json:"created_at"`
}
