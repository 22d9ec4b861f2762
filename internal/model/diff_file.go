package model

// DiffFile is one file of a pull request or commit diff.
type DiffFile struct {
	Filename  string  `json:"filename"`
	Status    string  `json:"status,omitempty"`
	Additions int     `json:"additions"`
	Deletions int     `json:"deletions"`
	Changes   int     `json:"changes"`
	Patch     *string `json:"patch,omitempty"`
}
