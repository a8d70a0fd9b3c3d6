package models

// User is the slice of the external user directory this service reads.
type User struct {
	ID           string
	UserName     string
	PasswordHash []byte
	IsAdmin      bool
}

// QuotaUsage is one ledger entry.
type QuotaUsage struct {
	OwnerID   string `json:"owner_id"`
	BytesUsed int64  `json:"used"`
	Ceiling   int64  `json:"ceiling"`
}
