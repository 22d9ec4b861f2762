package model

import "time"

// InstallationToken is a short-lived, installation-scoped access token issued
// by the source-control platform's app authentication flow.
type InstallationToken struct {
	InstallationID int64     `json:"installation_id"`
	Token          string    `json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// FreshAt reports whether the token is still usable at now with at least
// margin of validity left.
func (t InstallationToken) FreshAt(now time.Time, margin time.Duration) bool {
	return t.Token != "" && t.ExpiresAt.After(now.Add(margin))
}
