package archive

import "time"

// Manifest is the signed table of contents stored first in every archive.
type Manifest struct {
	Version          string    `yaml:"version"`
	CreatedAt        time.Time `yaml:"created_at"`
	Owner            string    `yaml:"owner,omitempty"`
	Signer           string    `yaml:"signer,omitempty"`
	SigningPublicKey string    `yaml:"signing_public_key,omitempty"`
	Signature        string    `yaml:"signature,omitempty"`
	Entries          []Entry   `yaml:"entries"`
}

// Entry describes one file of the archive.
type Entry struct {
	Path     string `yaml:"path"`
	Kind     string `yaml:"kind"`
	ReportID string `yaml:"report_id,omitempty"`
	Size     int64  `yaml:"size"`
	SHA256   string `yaml:"sha256"`
}
