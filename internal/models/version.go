package models

import "time"

// DocumentVersion is an immutable snapshot captured whenever a document's version changes.
type DocumentVersion struct {
	ID                string    `db:"id" json:"id"`
	DocumentID        string    `db:"document_id" json:"documentId"`
	Version           string    `db:"version" json:"version"`
	ContentReference  string    `db:"content_reference" json:"contentReference"`
	ChangeDescription string    `db:"change_description" json:"changeDescription"`
	AuthorUserID      string    `db:"author_user_id" json:"authorUserId"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}

// VersionDownload is a signed, expiring link to a version's content.
type VersionDownload struct {
	DocumentID string    `json:"documentId"`
	Version    string    `json:"version"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}
