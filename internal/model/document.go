package model

import (
	"encoding/json"
	"time"
)

// Document is the aggregate root: ownership, classification, a top-level
// soft-delete stamp and the two embedded ledgers (metadata and attachments).
// It is a pure domain type with no persistence tags beyond JSON naming;
// the whole document is the unit of storage atomicity.
type Document struct {
	ID          string          `json:"id"`
	Owner       string          `json:"owner"`
	Category    string          `json:"category"`
	Tag         string          `json:"tag,omitempty"`
	IsDeleted   *AuditEnvelope  `json:"is_deleted,omitempty"`
	Meta        []MetadataEntry `json:"meta"`
	MetaHistory []MetadataEntry `json:"meta_history"`
	Attachments []Attachment    `json:"attachments"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// MetadataEntry is one key/value revision on a document. A live entry has
// IsDeleted unset; entries in MetaHistory always carry the stamp that
// retired them.
type MetadataEntry struct {
	ID        string          `json:"id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	CreatedBy string          `json:"created_by"`
	IsDeleted *AuditEnvelope  `json:"is_deleted,omitempty"`
}

// Live reports whether the entry has not been retired.
func (e MetadataEntry) Live() bool { return e.IsDeleted == nil }

// Attachment is one file revision on a document. Superseded and archived
// attachments stay in the list with their deletion stamp set; the list
// never shrinks.
type Attachment struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	OriginalName string         `json:"original_name"`
	Size         int64          `json:"size"`
	MimeType     string         `json:"mime_type"`
	Category     string         `json:"category,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by"`
	IsDeleted    *AuditEnvelope `json:"is_deleted,omitempty"`
}

// Live reports whether the attachment has not been retired.
func (a Attachment) Live() bool { return a.IsDeleted == nil }

// AttachmentPatch holds the replacement fields for an attachment revision.
// Zero-valued fields fall back to the superseded attachment's values,
// field by field.
type AttachmentPatch struct {
	Filename     string
	OriginalName string
	Size         int64
	MimeType     string
	Category     string
	Tags         []string
}

// Live reports whether the document itself has not been archived.
func (d *Document) Live() bool { return d.IsDeleted == nil }

// Archive stamps the document-level deletion envelope. The embedded
// ledgers are left untouched; archival never cascades. Returns false if
// the document is already archived.
func (d *Document) Archive(actor string, now time.Time) bool {
	if !d.Live() {
		return false
	}
	d.IsDeleted = &AuditEnvelope{DeletedAt: now, DeletedBy: actor}
	return true
}

// LiveMeta returns the live metadata entry with the given id, or nil.
func (d *Document) LiveMeta(metaID string) *MetadataEntry {
	for i := range d.Meta {
		if d.Meta[i].ID == metaID && d.Meta[i].Live() {
			return &d.Meta[i]
		}
	}
	return nil
}

// HasLiveMetaKey reports whether any live entry already uses the key.
func (d *Document) HasLiveMetaKey(key string) bool {
	for i := range d.Meta {
		if d.Meta[i].Key == key && d.Meta[i].Live() {
			return true
		}
	}
	return false
}

// UpdateMeta retires the live entry with the given id into MetaHistory
// (verbatim copy plus deletion stamp) and replaces it with a fresh entry
// under newID. The two steps are applied to the in-memory aggregate
// together; nothing is written here. The new key is deliberately not
// checked against other live entries' keys.
// Returns false when no live entry matches metaID.
func (d *Document) UpdateMeta(metaID, key string, value json.RawMessage, actor string, now time.Time, newID string) bool {
	old := d.LiveMeta(metaID)
	if old == nil {
		return false
	}

	d.retireMeta(*old, actor, now)
	d.Meta = append(metaWithout(d.Meta, metaID), MetadataEntry{
		ID:        newID,
		Key:       key,
		Value:     value,
		CreatedAt: now,
		CreatedBy: actor,
	})
	return true
}

// ArchiveMeta retires the live entry with the given id into MetaHistory
// and removes it from the live list without replacement, freeing its key.
// Returns false when no live entry matches metaID.
func (d *Document) ArchiveMeta(metaID, actor string, now time.Time) bool {
	old := d.LiveMeta(metaID)
	if old == nil {
		return false
	}

	d.retireMeta(*old, actor, now)
	d.Meta = metaWithout(d.Meta, metaID)
	return true
}

// retireMeta appends a stamped copy of the entry to the history list.
// History is append-only; existing elements are never touched.
func (d *Document) retireMeta(entry MetadataEntry, actor string, now time.Time) {
	entry.IsDeleted = &AuditEnvelope{DeletedAt: now, DeletedBy: actor}
	history := make([]MetadataEntry, 0, len(d.MetaHistory)+1)
	history = append(history, d.MetaHistory...)
	d.MetaHistory = append(history, entry)
}

// metaWithout rebuilds the live list minus the entry with the given id.
// Rebuilding avoids aliasing the old backing array across revisions.
func metaWithout(entries []MetadataEntry, metaID string) []MetadataEntry {
	out := make([]MetadataEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != metaID {
			out = append(out, e)
		}
	}
	return out
}

// LiveAttachment returns the live attachment with the given id, or nil.
func (d *Document) LiveAttachment(attachmentID string) *Attachment {
	for i := range d.Attachments {
		if d.Attachments[i].ID == attachmentID && d.Attachments[i].Live() {
			return &d.Attachments[i]
		}
	}
	return nil
}

// AddAttachment appends a new live attachment to the ledger.
func (d *Document) AddAttachment(a Attachment) {
	attachments := make([]Attachment, 0, len(d.Attachments)+1)
	attachments = append(attachments, d.Attachments...)
	d.Attachments = append(attachments, a)
}

// UpdateAttachment stamps the live attachment with the given id as deleted
// in place and appends a replacement under newID. Each patch field falls
// back to the superseded attachment's value when unset. The attachment
// list only ever grows. Returns false when no live attachment matches.
func (d *Document) UpdateAttachment(attachmentID string, patch AttachmentPatch, actor string, now time.Time, newID string) bool {
	old := d.stampAttachment(attachmentID, actor, now)
	if old == nil {
		return false
	}

	next := Attachment{
		ID:           newID,
		Filename:     fallback(patch.Filename, old.Filename),
		OriginalName: fallback(patch.OriginalName, old.OriginalName),
		Size:         old.Size,
		MimeType:     fallback(patch.MimeType, old.MimeType),
		Category:     fallback(patch.Category, old.Category),
		Tags:         old.Tags,
		CreatedAt:    now,
		CreatedBy:    actor,
	}
	if patch.Size > 0 {
		next.Size = patch.Size
	}
	if patch.Tags != nil {
		next.Tags = patch.Tags
	}
	d.Attachments = append(d.Attachments, next)
	return true
}

// ArchiveAttachment stamps the live attachment with the given id as
// deleted in place. No replacement is appended and nothing is removed.
// Returns false when no live attachment matches.
func (d *Document) ArchiveAttachment(attachmentID, actor string, now time.Time) bool {
	return d.stampAttachment(attachmentID, actor, now) != nil
}

// stampAttachment rebuilds the attachment list with the matching live
// attachment stamped, and returns the pre-stamp copy.
func (d *Document) stampAttachment(attachmentID, actor string, now time.Time) *Attachment {
	var old *Attachment
	out := make([]Attachment, len(d.Attachments))
	for i, a := range d.Attachments {
		if a.ID == attachmentID && a.Live() {
			prev := a
			old = &prev
			a.IsDeleted = &AuditEnvelope{DeletedAt: now, DeletedBy: actor}
		}
		out[i] = a
	}
	if old == nil {
		return nil
	}
	d.Attachments = out
	return old
}

func fallback(v, old string) string {
	if v != "" {
		return v
	}
	return old
}
