package repository

import (
	"context"

	"docvault/internal/model"
)

// DocumentRepository is the persistence contract for the document
// aggregate. Implementations contain no business logic; they provide the
// exact primitives the lifecycle operations need: atomic single-document
// conditional updates, live-filtered finds and whole-document replace.
//
// Not-found is reported as sql.ErrNoRows by convention, matching the
// database/sql backend. Replace carries no version predicate: a concurrent
// writer between a find and the replace can be overwritten. That window is
// part of the design and must not be closed here silently.
type DocumentRepository interface {
	// Create inserts a new aggregate and returns the stored row
	// (including DB-assigned timestamps).
	Create(ctx context.Context, doc *model.Document) (*model.Document, error)

	// FindByID returns the document regardless of its archive state.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindLiveByID returns the document only when it is not archived.
	FindLiveByID(ctx context.Context, id string) (*model.Document, error)

	// FindByOwnerCategory lists live documents for an owner and category,
	// optionally narrowed by tag (empty tag means no tag filter).
	FindByOwnerCategory(ctx context.Context, owner, category, tag string) ([]model.Document, error)

	// FindLiveWithMeta returns the live document only when it holds a
	// live metadata entry with the given id.
	FindLiveWithMeta(ctx context.Context, docID, metaID string) (*model.Document, error)

	// FindLiveWithAttachment returns the live document only when it holds
	// a live attachment with the given id.
	FindLiveWithAttachment(ctx context.Context, docID, attachmentID string) (*model.Document, error)

	// PushMetadata appends the entry in one atomic conditional update: the
	// document must be live and no live entry may already use the key.
	// Returns the matched row count (0 means the condition failed).
	PushMetadata(ctx context.Context, docID string, entry model.MetadataEntry) (int64, error)

	// MarkArchived stamps the document-level deletion envelope if the
	// document is still live. Returns the matched row count.
	MarkArchived(ctx context.Context, docID string, env model.AuditEnvelope) (int64, error)

	// Replace writes the mutable aggregate state (ledgers, classification)
	// back by id and returns the stored row. Owner and the document-level
	// deletion stamp are not touched here.
	Replace(ctx context.Context, doc *model.Document) (*model.Document, error)
}
