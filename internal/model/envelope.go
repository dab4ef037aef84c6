package model

import "time"

// AuditEnvelope is the write-once soft-delete stamp shared by documents,
// metadata entries and attachments. Absence means the record is active;
// archival never removes a record from storage.
type AuditEnvelope struct {
	DeletedAt time.Time `json:"deleted_at"`
	DeletedBy string    `json:"deleted_by"`
}
