package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/identity"
	"docvault/internal/service"
	"docvault/internal/storage"
)

type createDocumentBody struct {
	Owner    string `json:"owner"`
	Category string `json:"category"`
	Tag      string `json:"tag"`
}

type addMetadataBody struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedBy string          `json:"created_by"`
}

type updateMetadataBody struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedBy string          `json:"updated_by"`
}

type archiveBody struct {
	DeletedBy string `json:"deleted_by"`
}

// HealthCheck verifies database connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness endpoint with no dependency checks.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// CreateDocument makes a new document with empty metadata and attachment lists.
func CreateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body createDocumentBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.Create(c.UserContext(), service.CreateDocumentRequest{
			Owner:    body.Owner,
			Category: body.Category,
			Tag:      body.Tag,
		})
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns a live document by id.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !identity.IsValid(id) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// FindDocuments lists live documents by owner and category, optionally
// narrowed by tag.
func FindDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		owner := c.Params("owner")
		if !identity.IsValid(owner) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		items, err := svc.Find(c.UserContext(), owner, c.Params("category"), c.Params("tag"))
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(items)
	}
}

// ArchiveDocument stamps the document-level deletion envelope. The
// document stays in the store; it only disappears from live reads.
func ArchiveDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if !identity.IsValid(id) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body archiveBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.Archive(c.UserContext(), id, body.DeletedBy)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// AddMeta appends a metadata entry; the key must not be live on the
// document already.
func AddMeta(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID := c.Params("docId")
		if !identity.IsValid(docID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body addMetadataBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.AddMeta(c.UserContext(), service.AddMetadataRequest{
			DocID:     docID,
			Key:       body.Key,
			Value:     body.Value,
			CreatedBy: body.CreatedBy,
		})
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// UpdateMeta retires the addressed metadata entry into history and
// installs the submitted revision.
func UpdateMeta(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID, metaID := c.Params("docId"), c.Params("metaId")
		if !identity.IsValid(docID) || !identity.IsValid(metaID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body updateMetadataBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.UpdateMeta(c.UserContext(), service.UpdateMetadataRequest{
			DocID:  docID,
			MetaID: metaID,
			Key:    body.Key,
			Value:  body.Value,
			Actor:  body.UpdatedBy,
		})
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ArchiveMeta retires the addressed metadata entry into history without
// replacement.
func ArchiveMeta(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID, metaID := c.Params("docId"), c.Params("metaId")
		if !identity.IsValid(docID) || !identity.IsValid(metaID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body archiveBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.ArchiveMeta(c.UserContext(), docID, metaID, body.DeletedBy)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// UploadAttachment stores the uploaded bytes and records the attachment
// on the document (multipart/form-data, field name: file).
func UploadAttachment(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID := c.Params("docId")
		if !identity.IsValid(docID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.UploadAttachment(c.UserContext(), f, service.UploadAttachmentRequest{
			DocID: docID,
			File: service.FileMeta{
				OriginalName: fh.Filename,
				Size:         fh.Size,
				MimeType:     contentTypeOf(fh.Header.Get("Content-Type")),
			},
			Category:  c.FormValue("category"),
			Tags:      splitTags(c.FormValue("tags")),
			CreatedBy: c.FormValue("created_by"),
		})
		if err != nil {
			return serviceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// UpdateAttachment soft-deletes the addressed attachment in place and
// appends a replacement. The file part is optional; when absent the
// stored bytes are kept and only the record fields change.
func UpdateAttachment(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID, attID := c.Params("docId"), c.Params("attachmentId")
		if !identity.IsValid(docID) || !identity.IsValid(attID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		req := service.UpdateAttachmentRequest{
			DocID:        docID,
			AttachmentID: attID,
			Category:     c.FormValue("category"),
			Tags:         splitTags(c.FormValue("tags")),
			Actor:        c.FormValue("updated_by"),
		}

		var reader io.Reader
		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			defer f.Close()
			reader = f
			req.File = &service.FileMeta{
				OriginalName: fh.Filename,
				Size:         fh.Size,
				MimeType:     contentTypeOf(fh.Header.Get("Content-Type")),
			}
		}

		doc, err := svc.UpdateAttachment(c.UserContext(), reader, req)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ArchiveAttachment soft-deletes the addressed attachment in place. The
// stored bytes are not removed.
func ArchiveAttachment(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID, attID := c.Params("docId"), c.Params("attachmentId")
		if !identity.IsValid(docID) || !identity.IsValid(attID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var body archiveBody
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "malformed request body")
		}

		doc, err := svc.ArchiveAttachment(c.UserContext(), docID, attID, body.DeletedBy)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadAttachment streams the stored bytes, or with ?presign=true
// returns a time-limited URL instead of the content.
func DownloadAttachment(svc service.DocumentService, store storage.Storage, presignExpiry time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docID, attID := c.Params("docId"), c.Params("attachmentId")
		if !identity.IsValid(docID) || !identity.IsValid(attID) {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		if c.QueryBool("presign") {
			att, err := svc.GetAttachment(c.UserContext(), docID, attID)
			if err != nil {
				return serviceError(c, err)
			}
			url, err := store.PresignGet(c.UserContext(), att.Filename, presignExpiry)
			if err != nil {
				return writeError(c, fiber.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "dependency unavailable")
			}
			return c.JSON(fiber.Map{
				"url":        url,
				"expires_in": int(presignExpiry.Seconds()),
			})
		}

		rc, att, err := svc.OpenAttachment(c.UserContext(), docID, attID)
		if err != nil {
			return serviceError(c, err)
		}

		c.Set(fiber.HeaderContentType, att.MimeType)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", att.OriginalName))
		return c.SendStream(rc, int(att.Size))
	}
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, store storage.Storage, presignExpiry time.Duration) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/documents", CreateDocument(docSvc))
	app.Get("/documents/find/:owner/:category/:tag?", FindDocuments(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Delete("/documents/:id", ArchiveDocument(docSvc))

	app.Post("/documents/:docId/meta", AddMeta(docSvc))
	app.Patch("/documents/:docId/meta/:metaId", UpdateMeta(docSvc))
	app.Delete("/documents/:docId/meta/:metaId", ArchiveMeta(docSvc))

	app.Post("/documents/:docId/attachments", UploadAttachment(docSvc))
	app.Get("/documents/:docId/attachments/:attachmentId", DownloadAttachment(docSvc, store, presignExpiry))
	app.Patch("/documents/:docId/attachments/:attachmentId", UpdateAttachment(docSvc))
	app.Delete("/documents/:docId/attachments/:attachmentId", ArchiveAttachment(docSvc))
}

// splitTags parses a comma-separated form value into a tag list.
func splitTags(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

func contentTypeOf(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
