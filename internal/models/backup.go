package models

import (
	"time"
)

// BackupRecord is a single backup as reported by the Mealie server.
type BackupRecord struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Size string `json:"size"` // e.g. "1.2 MB", informational only
}

// CreatedAt parses the server-reported date. The second return value is
// false when the date is not valid RFC3339, in which case the zero time is
// returned.
func (b BackupRecord) CreatedAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, b.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BackupCatalog is the response of the backups listing endpoint.
type BackupCatalog struct {
	Backups   []BackupRecord `json:"imports"`
	Templates []string       `json:"templates"`
}

// SuccessResult is the generic response for create and delete calls.
type SuccessResult struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// DownloadToken authorizes exactly one archive download.
type DownloadToken string

// FileTokenResponse is the response of the single-backup endpoint.
type FileTokenResponse struct {
	FileToken DownloadToken `json:"fileToken"`
}

// FieldViolation is a single entry of a server-side validation failure.
type FieldViolation struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

// HTTPValidationError is the body returned by the download endpoint on failure.
type HTTPValidationError struct {
	Detail []FieldViolation `json:"detail"`
}

// LocalBackupFile is a regular file inside the local backup directory.
type LocalBackupFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"-"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
