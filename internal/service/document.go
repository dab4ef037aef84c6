package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docvault/internal/identity"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

// Failure taxonomy. Handlers map these onto the HTTP edge; the service
// only produces the right kind and never retries internally.
var (
	// ErrInvalidID marks a malformed 24-hex identifier reaching the
	// service directly (defense in depth; primary validation is the
	// request layer's job).
	ErrInvalidID = errors.New("invalid identifier")
	// ErrInvalidArgument marks a missing or out-of-bounds required field.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound marks a document, metadata entry or attachment that
	// does not exist or is not live.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey marks an AddMeta call against a key that is already
	// live on the document.
	ErrDuplicateKey = errors.New("metadata key already in use")
	// ErrStorageUnavailable marks a repository failure; it propagates
	// as-is without retry.
	ErrStorageUnavailable = errors.New("document store unavailable")
)

const maxLabelLen = 50

// CreateDocumentRequest creates a new document aggregate.
type CreateDocumentRequest struct {
	Owner    string
	Category string
	Tag      string // optional secondary classification
}

// AddMetadataRequest appends a metadata entry to a document.
type AddMetadataRequest struct {
	DocID     string
	Key       string
	Value     json.RawMessage
	CreatedBy string
}

// UpdateMetadataRequest supersedes a live metadata entry with a revision.
type UpdateMetadataRequest struct {
	DocID  string
	MetaID string
	Key    string
	Value  json.RawMessage
	Actor  string
}

// FileMeta describes the uploaded bytes accompanying an attachment
// operation.
type FileMeta struct {
	OriginalName string
	Size         int64
	MimeType     string
}

// UploadAttachmentRequest adds a new attachment to a document.
type UploadAttachmentRequest struct {
	DocID     string
	File      FileMeta
	Category  string
	Tags      []string
	CreatedBy string
}

// UpdateAttachmentRequest supersedes a live attachment. File is nil when
// the stored bytes are kept; every absent field falls back to the
// superseded attachment's value.
type UpdateAttachmentRequest struct {
	DocID        string
	AttachmentID string
	File         *FileMeta
	Category     string
	Tags         []string
	Actor        string
}

// DocumentService exposes the document lifecycle operations.
type DocumentService interface {
	// Create makes a new document with empty ledgers and no deletion stamp.
	Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error)

	// Archive stamps the document-level deletion envelope. Terminal; the
	// embedded ledgers are untouched.
	Archive(ctx context.Context, docID, actorID string) (*model.Document, error)

	// Get returns a live document by id.
	Get(ctx context.Context, docID string) (*model.Document, error)

	// Find lists live documents by owner and category, optionally
	// narrowed by tag.
	Find(ctx context.Context, owner, category, tag string) ([]model.Document, error)

	// AddMeta appends a metadata entry; the key must not be live on the
	// document already.
	AddMeta(ctx context.Context, req AddMetadataRequest) (*model.Document, error)

	// UpdateMeta retires the addressed entry into history and installs a
	// fresh revision in one write.
	UpdateMeta(ctx context.Context, req UpdateMetadataRequest) (*model.Document, error)

	// ArchiveMeta retires the addressed entry into history without
	// replacement, freeing its key.
	ArchiveMeta(ctx context.Context, docID, metaID, actorID string) (*model.Document, error)

	// UploadAttachment streams the bytes to object storage and records
	// the attachment on the document.
	UploadAttachment(ctx context.Context, r io.Reader, req UploadAttachmentRequest) (*model.Document, error)

	// UpdateAttachment soft-deletes the addressed attachment in place and
	// appends a replacement; r may be nil when the stored bytes are kept.
	UpdateAttachment(ctx context.Context, r io.Reader, req UpdateAttachmentRequest) (*model.Document, error)

	// ArchiveAttachment soft-deletes the addressed attachment in place.
	ArchiveAttachment(ctx context.Context, docID, attachmentID, actorID string) (*model.Document, error)

	// GetAttachment returns the live attachment record for downstream
	// byte retrieval.
	GetAttachment(ctx context.Context, docID, attachmentID string) (*model.Attachment, error)

	// OpenAttachment returns the stored bytes and the attachment record.
	OpenAttachment(ctx context.Context, docID, attachmentID string) (io.ReadCloser, *model.Attachment, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store storage.Storage
	repo  repository.DocumentRepository
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository) DocumentService {
	return &documentService{store: store, repo: repo}
}

func (s *documentService) Create(ctx context.Context, req CreateDocumentRequest) (*model.Document, error) {
	if err := checkID(req.Owner, "owner"); err != nil {
		return nil, err
	}
	category, err := checkLabel(req.Category, "category")
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:          identity.New(),
		Owner:       req.Owner,
		Category:    category,
		Tag:         strings.TrimSpace(req.Tag),
		Meta:        []model.MetadataEntry{},
		MetaHistory: []model.MetadataEntry{},
		Attachments: []model.Attachment{},
	}
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) Archive(ctx context.Context, docID, actorID string) (*model.Document, error) {
	if err := checkID(docID, "docId"); err != nil {
		return nil, err
	}
	if err := checkID(actorID, "deletedBy"); err != nil {
		return nil, err
	}

	env := model.AuditEnvelope{DeletedAt: time.Now().UTC(), DeletedBy: actorID}
	matched, err := s.repo.MarkArchived(ctx, docID, env)
	if err != nil {
		return nil, storeErr(err)
	}
	if matched == 0 {
		return nil, ErrNotFound
	}

	doc, err := s.repo.FindByID(ctx, docID)
	if err != nil {
		return nil, storeErr(err)
	}
	return doc, nil
}

func (s *documentService) Get(ctx context.Context, docID string) (*model.Document, error) {
	if err := checkID(docID, "docId"); err != nil {
		return nil, err
	}
	return s.findLive(ctx, docID)
}

func (s *documentService) Find(ctx context.Context, owner, category, tag string) ([]model.Document, error) {
	if err := checkID(owner, "owner"); err != nil {
		return nil, err
	}
	category, err := checkLabel(category, "category")
	if err != nil {
		return nil, err
	}

	items, err := s.repo.FindByOwnerCategory(ctx, owner, category, strings.TrimSpace(tag))
	if err != nil {
		return nil, storeErr(err)
	}
	return items, nil
}

func (s *documentService) AddMeta(ctx context.Context, req AddMetadataRequest) (*model.Document, error) {
	if err := checkID(req.DocID, "docId"); err != nil {
		return nil, err
	}
	if err := checkID(req.CreatedBy, "createdBy"); err != nil {
		return nil, err
	}
	key, err := checkLabel(req.Key, "key")
	if err != nil {
		return nil, err
	}
	if len(req.Value) == 0 {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidArgument)
	}

	// Resolve the document first so a matched-zero push below can only
	// mean the key precondition failed.
	if _, err := s.findLive(ctx, req.DocID); err != nil {
		return nil, err
	}

	entry := model.MetadataEntry{
		ID:        identity.New(),
		Key:       key,
		Value:     req.Value,
		CreatedAt: time.Now().UTC(),
		CreatedBy: req.CreatedBy,
	}
	matched, err := s.repo.PushMetadata(ctx, req.DocID, entry)
	if err != nil {
		return nil, storeErr(err)
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}

	return s.findLive(ctx, req.DocID)
}

func (s *documentService) UpdateMeta(ctx context.Context, req UpdateMetadataRequest) (*model.Document, error) {
	if err := checkIDs(map[string]string{"docId": req.DocID, "metaId": req.MetaID, "createdBy": req.Actor}); err != nil {
		return nil, err
	}
	key, err := checkLabel(req.Key, "key")
	if err != nil {
		return nil, err
	}
	if len(req.Value) == 0 {
		return nil, fmt.Errorf("%w: value is required", ErrInvalidArgument)
	}

	doc, err := s.repo.FindLiveWithMeta(ctx, req.DocID, req.MetaID)
	if err != nil {
		return nil, notFoundOr(err)
	}

	// Note: the revision's key is not re-checked against other live keys.
	if !doc.UpdateMeta(req.MetaID, key, req.Value, req.Actor, time.Now().UTC(), identity.New()) {
		return nil, ErrNotFound
	}
	stored, err := s.repo.Replace(ctx, doc)
	if err != nil {
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) ArchiveMeta(ctx context.Context, docID, metaID, actorID string) (*model.Document, error) {
	if err := checkIDs(map[string]string{"docId": docID, "metaId": metaID, "deletedBy": actorID}); err != nil {
		return nil, err
	}

	doc, err := s.repo.FindLiveWithMeta(ctx, docID, metaID)
	if err != nil {
		return nil, notFoundOr(err)
	}

	if !doc.ArchiveMeta(metaID, actorID, time.Now().UTC()) {
		return nil, ErrNotFound
	}
	stored, err := s.repo.Replace(ctx, doc)
	if err != nil {
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) UploadAttachment(ctx context.Context, r io.Reader, req UploadAttachmentRequest) (*model.Document, error) {
	if err := checkID(req.DocID, "docId"); err != nil {
		return nil, err
	}
	if err := checkID(req.CreatedBy, "createdBy"); err != nil {
		return nil, err
	}
	if r == nil || req.File.OriginalName == "" {
		return nil, fmt.Errorf("%w: file is required", ErrInvalidArgument)
	}

	doc, err := s.findLive(ctx, req.DocID)
	if err != nil {
		return nil, err
	}

	key, info, err := s.putObject(ctx, r, req.DocID, req.File)
	if err != nil {
		return nil, err
	}

	doc.AddAttachment(model.Attachment{
		ID:           identity.New(),
		Filename:     key,
		OriginalName: req.File.OriginalName,
		Size:         info.Size,
		MimeType:     req.File.MimeType,
		Category:     strings.TrimSpace(req.Category),
		Tags:         req.Tags,
		CreatedAt:    time.Now().UTC(),
		CreatedBy:    req.CreatedBy,
	})

	stored, err := s.repo.Replace(ctx, doc)
	if err != nil {
		// Roll the uploaded object back so storage holds no unreferenced
		// bytes.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("record attachment: %v; rollback delete failed: %w", err, delErr)
		}
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) UpdateAttachment(ctx context.Context, r io.Reader, req UpdateAttachmentRequest) (*model.Document, error) {
	if err := checkIDs(map[string]string{"docId": req.DocID, "attachmentId": req.AttachmentID, "createdBy": req.Actor}); err != nil {
		return nil, err
	}

	doc, err := s.repo.FindLiveWithAttachment(ctx, req.DocID, req.AttachmentID)
	if err != nil {
		return nil, notFoundOr(err)
	}

	patch := model.AttachmentPatch{
		Category: strings.TrimSpace(req.Category),
		Tags:     req.Tags,
	}
	uploadedKey := ""
	if r != nil && req.File != nil {
		key, info, err := s.putObject(ctx, r, req.DocID, *req.File)
		if err != nil {
			return nil, err
		}
		uploadedKey = key
		patch.Filename = key
		patch.OriginalName = req.File.OriginalName
		patch.Size = info.Size
		patch.MimeType = req.File.MimeType
	}

	if !doc.UpdateAttachment(req.AttachmentID, patch, req.Actor, time.Now().UTC(), identity.New()) {
		if uploadedKey != "" {
			_ = s.store.Delete(ctx, uploadedKey)
		}
		return nil, ErrNotFound
	}
	stored, err := s.repo.Replace(ctx, doc)
	if err != nil {
		if uploadedKey != "" {
			_ = s.store.Delete(ctx, uploadedKey)
		}
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) ArchiveAttachment(ctx context.Context, docID, attachmentID, actorID string) (*model.Document, error) {
	if err := checkIDs(map[string]string{"docId": docID, "attachmentId": attachmentID, "deletedBy": actorID}); err != nil {
		return nil, err
	}

	doc, err := s.repo.FindLiveWithAttachment(ctx, docID, attachmentID)
	if err != nil {
		return nil, notFoundOr(err)
	}

	// Soft delete only: the stored bytes stay in place for the audit
	// trail.
	if !doc.ArchiveAttachment(attachmentID, actorID, time.Now().UTC()) {
		return nil, ErrNotFound
	}
	stored, err := s.repo.Replace(ctx, doc)
	if err != nil {
		return nil, storeErr(err)
	}
	return stored, nil
}

func (s *documentService) GetAttachment(ctx context.Context, docID, attachmentID string) (*model.Attachment, error) {
	if err := checkIDs(map[string]string{"docId": docID, "attachmentId": attachmentID}); err != nil {
		return nil, err
	}

	doc, err := s.repo.FindLiveWithAttachment(ctx, docID, attachmentID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	att := doc.LiveAttachment(attachmentID)
	if att == nil {
		return nil, ErrNotFound
	}
	return att, nil
}

func (s *documentService) OpenAttachment(ctx context.Context, docID, attachmentID string) (io.ReadCloser, *model.Attachment, error) {
	att, err := s.GetAttachment(ctx, docID, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.store.Get(ctx, att.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment: %w", err)
	}
	return rc, att, nil
}

// putObject streams the bytes under a generated per-document key.
func (s *documentService) putObject(ctx context.Context, r io.Reader, docID string, file FileMeta) (string, storage.ObjectInfo, error) {
	genName := uuid.New().String() + filepath.Ext(file.OriginalName)
	key := filepath.ToSlash(filepath.Join("attachments", docID, genName))

	info, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        file.Size,
		ContentType: file.MimeType,
		Metadata: map[string]string{
			"original-filename": file.OriginalName,
		},
	})
	if err != nil {
		return "", storage.ObjectInfo{}, fmt.Errorf("upload to storage: %w", err)
	}
	return key, info, nil
}

func (s *documentService) findLive(ctx context.Context, docID string) (*model.Document, error) {
	doc, err := s.repo.FindLiveByID(ctx, docID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return doc, nil
}

func checkID(id, field string) error {
	if !identity.IsValid(id) {
		return fmt.Errorf("%w: %s", ErrInvalidID, field)
	}
	return nil
}

func checkIDs(fields map[string]string) error {
	for field, id := range fields {
		if err := checkID(id, field); err != nil {
			return err
		}
	}
	return nil
}

// checkLabel trims and bounds a short classification string (category,
// metadata key).
func checkLabel(v, field string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > maxLabelLen {
		return "", fmt.Errorf("%w: %s must be 1-%d characters", ErrInvalidArgument, field, maxLabelLen)
	}
	return v, nil
}

func notFoundOr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return storeErr(err)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
