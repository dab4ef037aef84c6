package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"docvault/internal/model"
	repoMocks "docvault/internal/repository/mocks"
	"docvault/internal/storage"
	storeMocks "docvault/internal/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	docID   = "65f0000000000000000000aa"
	ownerID = "65f0000000000000000000bb"
	metaID  = "65f0000000000000000000c1"
	attID   = "65f0000000000000000000d1"
	actorID = "65f0000000000000000000ee"
)

func liveDoc() *model.Document {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &model.Document{
		ID:       docID,
		Owner:    ownerID,
		Category: "invoice",
		Meta: []model.MetadataEntry{
			{ID: metaID, Key: "status", Value: json.RawMessage(`"draft"`), CreatedAt: created, CreatedBy: ownerID},
		},
		MetaHistory: []model.MetadataEntry{},
		Attachments: []model.Attachment{
			{ID: attID, Filename: "attachments/" + docID + "/a1.pdf", OriginalName: "scan.pdf", Size: 2048, MimeType: "application/pdf", Category: "scans", CreatedAt: created, CreatedBy: ownerID},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestDocumentService_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		req        CreateDocumentRequest
		setupMocks func(mRepo *repoMocks.MockDocumentRepository)
		wantErr    error
	}{
		{
			name: "happy path",
			req:  CreateDocumentRequest{Owner: ownerID, Category: "invoice", Tag: "2024"},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Create", ctx, mock.MatchedBy(func(d *model.Document) bool {
					return len(d.ID) == 24 && d.Owner == ownerID && d.Category == "invoice" &&
						d.Tag == "2024" && d.IsDeleted == nil &&
						len(d.Meta) == 0 && len(d.MetaHistory) == 0 && len(d.Attachments) == 0
				})).Return(liveDoc(), nil)
			},
		},
		{
			name:       "invalid owner id",
			req:        CreateDocumentRequest{Owner: "not-an-id", Category: "invoice"},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrInvalidID,
		},
		{
			name:       "missing category",
			req:        CreateDocumentRequest{Owner: ownerID, Category: "   "},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrInvalidArgument,
		},
		{
			name:       "category over 50 chars",
			req:        CreateDocumentRequest{Owner: ownerID, Category: strings.Repeat("x", 51)},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {},
			wantErr:    ErrInvalidArgument,
		},
		{
			name: "repository failure",
			req:  CreateDocumentRequest{Owner: ownerID, Category: "invoice"},
			setupMocks: func(mRepo *repoMocks.MockDocumentRepository) {
				mRepo.On("Create", ctx, mock.Anything).Return(nil, errors.New("db down"))
			},
			wantErr: ErrStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mRepo := new(repoMocks.MockDocumentRepository)
			svc := NewDocumentService(nil, mRepo)
			tt.setupMocks(mRepo)

			doc, err := svc.Create(ctx, tt.req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, doc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, doc)
			}
			mRepo.AssertExpectations(t)
		})
	}
}

func TestDocumentService_Archive(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		archived := liveDoc()
		archived.IsDeleted = &model.AuditEnvelope{DeletedAt: time.Now().UTC(), DeletedBy: actorID}

		mRepo.On("MarkArchived", ctx, docID, mock.MatchedBy(func(env model.AuditEnvelope) bool {
			return env.DeletedBy == actorID && !env.DeletedAt.IsZero()
		})).Return(int64(1), nil)
		mRepo.On("FindByID", ctx, docID).Return(archived, nil)

		doc, err := svc.Archive(ctx, docID, actorID)

		require.NoError(t, err)
		require.NotNil(t, doc.IsDeleted)
		// Non-cascading: ledger entries keep their own deletion state.
		assert.True(t, doc.Meta[0].Live())
		assert.True(t, doc.Attachments[0].Live())
		mRepo.AssertExpectations(t)
	})

	t.Run("already archived or missing", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("MarkArchived", ctx, docID, mock.Anything).Return(int64(0), nil)

		_, err := svc.Archive(ctx, docID, actorID)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid actor id", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.Archive(ctx, docID, "nope")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestDocumentService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveByID", ctx, docID).Return(liveDoc(), nil)

		doc, err := svc.Get(ctx, docID)

		assert.NoError(t, err)
		assert.Equal(t, docID, doc.ID)
	})

	t.Run("archived document is invisible", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveByID", ctx, docID).Return(nil, sql.ErrNoRows)

		_, err := svc.Get(ctx, docID)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.Get(ctx, "short")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestDocumentService_Find(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindByOwnerCategory", ctx, ownerID, "invoice", "2024").
			Return([]model.Document{*liveDoc()}, nil)

		items, err := svc.Find(ctx, ownerID, "invoice", "2024")

		assert.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("invalid owner", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.Find(ctx, "bad", "invoice", "")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestDocumentService_AddMeta(t *testing.T) {
	ctx := context.Background()
	value := json.RawMessage(`{"state":"draft"}`)

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		mRepo.On("FindLiveByID", ctx, docID).Return(liveDoc(), nil).Twice()
		mRepo.On("PushMetadata", ctx, docID, mock.MatchedBy(func(e model.MetadataEntry) bool {
			return len(e.ID) == 24 && e.Key == "reviewer" && e.CreatedBy == actorID && e.IsDeleted == nil
		})).Return(int64(1), nil)

		doc, err := svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: "reviewer", Value: value, CreatedBy: actorID})

		assert.NoError(t, err)
		assert.NotNil(t, doc)
		mRepo.AssertExpectations(t)
	})

	t.Run("duplicate live key conflicts", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		mRepo.On("FindLiveByID", ctx, docID).Return(liveDoc(), nil).Once()
		mRepo.On("PushMetadata", ctx, docID, mock.Anything).Return(int64(0), nil)

		_, err := svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: "status", Value: value, CreatedBy: actorID})

		assert.ErrorIs(t, err, ErrDuplicateKey)
	})

	t.Run("document not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveByID", ctx, docID).Return(nil, sql.ErrNoRows)

		_, err := svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: "status", Value: value, CreatedBy: actorID})

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("key is trimmed and bounded", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))

		_, err := svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: strings.Repeat("k", 51), Value: value, CreatedBy: actorID})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: "  ", Value: value, CreatedBy: actorID})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("value required", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.AddMeta(ctx, AddMetadataRequest{DocID: docID, Key: "status", CreatedBy: actorID})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestDocumentService_UpdateMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("retires the old revision into history", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithMeta", ctx, docID, metaID).Return(doc, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.UpdateMeta(ctx, UpdateMetadataRequest{
			DocID: docID, MetaID: metaID, Key: "status", Value: json.RawMessage(`"final"`), Actor: actorID,
		})

		require.NoError(t, err)
		require.Len(t, got.MetaHistory, 1)
		hist := got.MetaHistory[0]
		assert.Equal(t, metaID, hist.ID)
		assert.JSONEq(t, `"draft"`, string(hist.Value))
		require.NotNil(t, hist.IsDeleted)
		assert.Equal(t, actorID, hist.IsDeleted.DeletedBy)

		require.Len(t, got.Meta, 1)
		assert.NotEqual(t, metaID, got.Meta[0].ID)
		assert.JSONEq(t, `"final"`, string(got.Meta[0].Value))
		mRepo.AssertExpectations(t)
	})

	t.Run("no live entry", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveWithMeta", ctx, docID, metaID).Return(nil, sql.ErrNoRows)

		_, err := svc.UpdateMeta(ctx, UpdateMetadataRequest{
			DocID: docID, MetaID: metaID, Key: "status", Value: json.RawMessage(`"x"`), Actor: actorID,
		})

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("replace failure leaves a typed error", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		doc := liveDoc()
		mRepo.On("FindLiveWithMeta", ctx, docID, metaID).Return(doc, nil)
		mRepo.On("Replace", ctx, doc).Return(nil, errors.New("write failed"))

		_, err := svc.UpdateMeta(ctx, UpdateMetadataRequest{
			DocID: docID, MetaID: metaID, Key: "status", Value: json.RawMessage(`"x"`), Actor: actorID,
		})

		assert.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

func TestDocumentService_ArchiveMeta(t *testing.T) {
	ctx := context.Background()

	t.Run("frees the key", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithMeta", ctx, docID, metaID).Return(doc, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.ArchiveMeta(ctx, docID, metaID, actorID)

		require.NoError(t, err)
		assert.Empty(t, got.Meta)
		require.Len(t, got.MetaHistory, 1)
		assert.False(t, got.HasLiveMetaKey("status"))
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveWithMeta", ctx, docID, metaID).Return(nil, sql.ErrNoRows)

		_, err := svc.ArchiveMeta(ctx, docID, metaID, actorID)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_UploadAttachment(t *testing.T) {
	ctx := context.Background()
	req := UploadAttachmentRequest{
		DocID:     docID,
		File:      FileMeta{OriginalName: "report.pdf", Size: 11, MimeType: "application/pdf"},
		Category:  "reports",
		Tags:      []string{"q1"},
		CreatedBy: actorID,
	}

	t.Run("happy path", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo)

		doc := liveDoc()
		r := strings.NewReader("hello world")

		mRepo.On("FindLiveByID", ctx, docID).Return(doc, nil)
		mStore.On("Put", ctx, mock.MatchedBy(func(key string) bool {
			return strings.HasPrefix(key, "attachments/"+docID+"/") && strings.HasSuffix(key, ".pdf")
		}), r, storage.PutObjectOptions{
			Size:        11,
			ContentType: "application/pdf",
			Metadata:    map[string]string{"original-filename": "report.pdf"},
		}).Return(storage.ObjectInfo{Key: "attachments/" + docID + "/gen.pdf", Size: 11}, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.UploadAttachment(ctx, r, req)

		require.NoError(t, err)
		require.Len(t, got.Attachments, 2)
		added := got.Attachments[1]
		assert.Equal(t, "report.pdf", added.OriginalName)
		assert.Equal(t, int64(11), added.Size)
		assert.Equal(t, "reports", added.Category)
		assert.True(t, added.Live())
		mStore.AssertExpectations(t)
		mRepo.AssertExpectations(t)
	})

	t.Run("record failure rolls the object back", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo)

		doc := liveDoc()
		r := strings.NewReader("hello")

		mRepo.On("FindLiveByID", ctx, docID).Return(doc, nil)
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).
			Return(storage.ObjectInfo{Size: 5}, nil)
		mRepo.On("Replace", ctx, doc).Return(nil, errors.New("write failed"))
		mStore.On("Delete", ctx, mock.Anything).Return(nil)

		_, err := svc.UploadAttachment(ctx, r, req)

		assert.ErrorIs(t, err, ErrStorageUnavailable)
		mStore.AssertExpectations(t)
	})

	t.Run("nil reader", func(t *testing.T) {
		svc := NewDocumentService(nil, new(repoMocks.MockDocumentRepository))
		_, err := svc.UploadAttachment(ctx, nil, req)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("document not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(new(storeMocks.MockStorage), mRepo)
		mRepo.On("FindLiveByID", ctx, docID).Return(nil, sql.ErrNoRows)

		_, err := svc.UploadAttachment(ctx, strings.NewReader("x"), req)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_UpdateAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("tags only: remaining fields fall back", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(new(storeMocks.MockStorage), mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(doc, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.UpdateAttachment(ctx, nil, UpdateAttachmentRequest{
			DocID: docID, AttachmentID: attID, Tags: []string{"q2"}, Actor: actorID,
		})

		require.NoError(t, err)
		// In-place deletion: the list grows, never shrinks.
		require.Len(t, got.Attachments, 2)
		require.NotNil(t, got.Attachments[0].IsDeleted)

		next := got.Attachments[1]
		assert.Equal(t, "attachments/"+docID+"/a1.pdf", next.Filename)
		assert.Equal(t, "scan.pdf", next.OriginalName)
		assert.Equal(t, "scans", next.Category)
		assert.Equal(t, int64(2048), next.Size)
		assert.Equal(t, []string{"q2"}, next.Tags)
		mRepo.AssertExpectations(t)
	})

	t.Run("with new file", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo)

		doc := liveDoc()
		r := strings.NewReader("v2 bytes")

		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(doc, nil)
		mStore.On("Put", ctx, mock.Anything, r, mock.Anything).
			Return(storage.ObjectInfo{Size: 8}, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.UpdateAttachment(ctx, r, UpdateAttachmentRequest{
			DocID:        docID,
			AttachmentID: attID,
			File:         &FileMeta{OriginalName: "scan-v2.pdf", Size: 8, MimeType: "application/pdf"},
			Actor:        actorID,
		})

		require.NoError(t, err)
		next := got.Attachments[1]
		assert.Equal(t, "scan-v2.pdf", next.OriginalName)
		assert.Equal(t, int64(8), next.Size)
		assert.True(t, strings.HasPrefix(next.Filename, "attachments/"+docID+"/"))
	})

	t.Run("no live attachment", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(new(storeMocks.MockStorage), mRepo)
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(nil, sql.ErrNoRows)

		_, err := svc.UpdateAttachment(ctx, nil, UpdateAttachmentRequest{
			DocID: docID, AttachmentID: attID, Actor: actorID,
		})

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_ArchiveAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps in place", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(doc, nil)
		mRepo.On("Replace", ctx, doc).Return(doc, nil)

		got, err := svc.ArchiveAttachment(ctx, docID, attID, actorID)

		require.NoError(t, err)
		require.Len(t, got.Attachments, 1)
		require.NotNil(t, got.Attachments[0].IsDeleted)
		assert.Equal(t, actorID, got.Attachments[0].IsDeleted.DeletedBy)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(nil, sql.ErrNoRows)

		_, err := svc.ArchiveAttachment(ctx, docID, attID, actorID)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_GetAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(liveDoc(), nil)

		att, err := svc.GetAttachment(ctx, docID, attID)

		require.NoError(t, err)
		assert.Equal(t, attID, att.ID)
		assert.Equal(t, "scan.pdf", att.OriginalName)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(nil, mRepo)
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(nil, sql.ErrNoRows)

		_, err := svc.GetAttachment(ctx, docID, attID)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDocumentService_OpenAttachment(t *testing.T) {
	ctx := context.Background()

	t.Run("streams the stored object", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(doc, nil)
		mStore.On("Get", ctx, doc.Attachments[0].Filename).
			Return(io.NopCloser(strings.NewReader("bytes")), storage.ObjectInfo{Size: 5}, nil)

		rc, att, err := svc.OpenAttachment(ctx, docID, attID)

		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, "scan.pdf", att.OriginalName)
		data, _ := io.ReadAll(rc)
		assert.Equal(t, "bytes", string(data))
	})

	t.Run("storage failure", func(t *testing.T) {
		mStore := new(storeMocks.MockStorage)
		mRepo := new(repoMocks.MockDocumentRepository)
		svc := NewDocumentService(mStore, mRepo)

		doc := liveDoc()
		mRepo.On("FindLiveWithAttachment", ctx, docID, attID).Return(doc, nil)
		mStore.On("Get", ctx, mock.Anything).
			Return(io.NopCloser(strings.NewReader("")), storage.ObjectInfo{}, errors.New("object missing"))

		_, _, err := svc.OpenAttachment(ctx, docID, attID)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "open attachment")
	})
}
