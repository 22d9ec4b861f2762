package dto

type WebhookResponse struct {
	Status     string `json:"status"`
	EventID    string `json:"event_id,omitempty"`
	DetailType string `json:"detail_type,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
