package store

import "strconv"

const (
	tokenSortKey   = "TOKEN"
	profileSortKey = "PROFILE"
)

// InstallationKey is the partition key of an installation's cached token.
func InstallationKey(installationID int64) string {
	return "INSTALLATION#" + strconv.FormatInt(installationID, 10)
}

// ProfileKey is the partition key of a user profile.
func ProfileKey(githubUsername string) string {
	return "GITHUBUSER#" + githubUsername
}

// PullRequestKey is the partition key of a pull request audit record.
func PullRequestKey(prID int64) string {
	return "pr#" + strconv.FormatInt(prID, 10)
}

// CommitKey is the partition key of a commit audit record.
func CommitKey(sha string) string {
	return "commit#" + sha
}
