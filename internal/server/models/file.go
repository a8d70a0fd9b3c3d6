// Package models defines server-side data models persisted in the database.
package models

import "time"

// File is the durable metadata of one stored object. Size, MimeType and
// FileName describe the plaintext; the blob referenced by BlobID holds only
// ciphertext.
type File struct {
	ID string `json:"id"`
	// Name is the display name chosen by the owner.
	Name string `json:"name"`
	// FileName is the original filename sent by the uploader.
	FileName string `json:"filename"`
	// BlobID is the opaque reference returned by the blob backend.
	BlobID string `json:"-"`
	// Size is the plaintext length in bytes, fixed at creation.
	Size int64 `json:"size"`
	// MimeType is declared by the uploader, never sniffed.
	MimeType string `json:"mime_type"`
	// IV is the hex-encoded CBC initialization vector, unique per file.
	IV string `json:"-"`

	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`

	Description string `json:"description"`
	Edited      bool   `json:"edited"`
	// Tombstoned marks a soft delete by an administrator. The blob and the
	// owner's quota are retained.
	Tombstoned bool `json:"deleted_by_admin"`

	CreatedAt time.Time `json:"created_at"`
}
