package model

// AuditRecord is the persisted trace of one pull request or commit event.
type AuditRecord struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "pull_request" or "commit"
	Repo      string `json:"repo"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	URL       string `json:"url"`
	Action    string `json:"action,omitempty"`
	Ref       string `json:"ref,omitempty"`
	Head      string `json:"head,omitempty"`
	Pusher    string `json:"pusher,omitempty"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	EventID   string `json:"event_id"`
}
