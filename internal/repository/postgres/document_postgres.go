package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of
// repository.DocumentRepository. The aggregate is stored as one row with
// the embedded ledgers in JSONB columns, so the row is the unit of
// atomicity. Strictly persistence operations, no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const docColumns = `id, owner, category, tag, deleted_at, deleted_by, meta, meta_history, attachments, created_at, updated_at`

// Create inserts a new aggregate row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		INSERT INTO documents (id, owner, category, tag, meta, meta_history, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + docColumns

	meta, history, attachments, err := marshalLedgers(doc)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Owner,
		doc.Category,
		nullString(doc.Tag),
		meta,
		history,
		attachments,
	)
	return scanDocument(row)
}

// FindByID fetches a document by id regardless of archive state.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + docColumns + ` FROM documents WHERE id = $1`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// FindLiveByID fetches a document by id, excluding archived documents.
func (r *DocumentPostgres) FindLiveByID(ctx context.Context, id string) (*model.Document, error) {
	const q = `SELECT ` + docColumns + ` FROM documents WHERE id = $1 AND deleted_at IS NULL`
	return scanDocument(r.db.QueryRowContext(ctx, q, id))
}

// FindByOwnerCategory lists live documents matching owner and category,
// optionally narrowed by tag.
func (r *DocumentPostgres) FindByOwnerCategory(ctx context.Context, owner, category, tag string) ([]model.Document, error) {
	q := `SELECT ` + docColumns + ` FROM documents WHERE owner = $1 AND category = $2 AND deleted_at IS NULL`
	args := []any{owner, category}
	if tag != "" {
		q += ` AND tag = $3`
		args = append(args, tag)
	}
	q += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// FindLiveWithMeta fetches the live document only when it contains a live
// metadata entry with the given id (the embedded-match find).
func (r *DocumentPostgres) FindLiveWithMeta(ctx context.Context, docID, metaID string) (*model.Document, error) {
	const q = `
		SELECT ` + docColumns + `
		FROM documents
		WHERE id = $1 AND deleted_at IS NULL
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(meta) AS e
			WHERE e->>'id' = $2 AND e->'is_deleted' IS NULL
		  )
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, docID, metaID))
}

// FindLiveWithAttachment fetches the live document only when it contains a
// live attachment with the given id.
func (r *DocumentPostgres) FindLiveWithAttachment(ctx context.Context, docID, attachmentID string) (*model.Document, error) {
	const q = `
		SELECT ` + docColumns + `
		FROM documents
		WHERE id = $1 AND deleted_at IS NULL
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(attachments) AS e
			WHERE e->>'id' = $2 AND e->'is_deleted' IS NULL
		  )
	`
	return scanDocument(r.db.QueryRowContext(ctx, q, docID, attachmentID))
}

// PushMetadata appends the entry in a single conditional update. The
// key-absent check and the append are one atomic statement; the caller
// reads a zero matched count as a failed precondition.
func (r *DocumentPostgres) PushMetadata(ctx context.Context, docID string, entry model.MetadataEntry) (int64, error) {
	const q = `
		UPDATE documents
		SET meta = meta || jsonb_build_array($2::jsonb), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		  AND NOT EXISTS (
			SELECT 1 FROM jsonb_array_elements(meta) AS e
			WHERE e->>'key' = $3 AND e->'is_deleted' IS NULL
		  )
	`
	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata entry: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, docID, payload, entry.Key)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkArchived stamps the document-level deletion envelope on a still-live
// document. Returns the matched row count.
func (r *DocumentPostgres) MarkArchived(ctx context.Context, docID string, env model.AuditEnvelope) (int64, error) {
	const q = `
		UPDATE documents
		SET deleted_at = $2, deleted_by = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, q, docID, env.DeletedAt, env.DeletedBy)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Replace writes the mutable aggregate state back by id. There is no
// version predicate; the last writer wins.
func (r *DocumentPostgres) Replace(ctx context.Context, doc *model.Document) (*model.Document, error) {
	const q = `
		UPDATE documents
		SET category = $2, tag = $3, meta = $4, meta_history = $5, attachments = $6, updated_at = now()
		WHERE id = $1
		RETURNING ` + docColumns

	meta, history, attachments, err := marshalLedgers(doc)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.Category,
		nullString(doc.Tag),
		meta,
		history,
		attachments,
	)
	return scanDocument(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		d           model.Document
		tag         sql.NullString
		deletedAt   sql.NullTime
		deletedBy   sql.NullString
		meta        []byte
		history     []byte
		attachments []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.Owner,
		&d.Category,
		&tag,
		&deletedAt,
		&deletedBy,
		&meta,
		&history,
		&attachments,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.Tag = tag.String
	if deletedAt.Valid {
		d.IsDeleted = &model.AuditEnvelope{DeletedAt: deletedAt.Time, DeletedBy: deletedBy.String}
	}
	if err := json.Unmarshal(meta, &d.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	if err := json.Unmarshal(history, &d.MetaHistory); err != nil {
		return nil, fmt.Errorf("unmarshal meta_history: %w", err)
	}
	if err := json.Unmarshal(attachments, &d.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	return &d, nil
}

func marshalLedgers(doc *model.Document) (meta, history, attachments []byte, err error) {
	if meta, err = marshalList(doc.Meta); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal meta: %w", err)
	}
	if history, err = marshalList(doc.MetaHistory); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal meta_history: %w", err)
	}
	if attachments, err = marshalList(doc.Attachments); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal attachments: %w", err)
	}
	return meta, history, attachments, nil
}

// marshalList keeps nil slices as empty JSON arrays so the JSONB columns
// never hold SQL or JSON nulls.
func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
