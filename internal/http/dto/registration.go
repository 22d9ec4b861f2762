package dto

type RegisterRequest struct {
	Email          string `json:"email"`
	GithubUsername string `json:"githubUsername"`
}

type RegisterResponse struct {
	Message        string `json:"message"`
	GithubUsername string `json:"githubUsername,omitempty"`
}
