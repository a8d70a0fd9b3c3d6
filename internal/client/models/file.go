// Package models defines the JSON shapes the filevault API returns.
package models

import "time"

// File is the metadata of a stored file as the server reports it.
type File struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FileName    string    `json:"filename"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type"`
	OwnerID     string    `json:"owner_id"`
	ProjectID   string    `json:"project_id"`
	Description string    `json:"description"`
	Edited      bool      `json:"edited"`
	Tombstoned  bool      `json:"deleted_by_admin"`
	CreatedAt   time.Time `json:"created_at"`
}

// DownloadToken is a short-lived capability for one file.
type DownloadToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Usage struct {
	OwnerID   string `json:"owner_id"`
	BytesUsed int64  `json:"used"`
	Ceiling   int64  `json:"ceiling"`
}

type PurgeResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}
