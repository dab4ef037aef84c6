package mocks

import (
	"context"
	"io"

	"docvault/internal/model"
	"docvault/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Create(ctx context.Context, req service.CreateDocumentRequest) (*model.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Archive(ctx context.Context, docID, actorID string) (*model.Document, error) {
	args := m.Called(ctx, docID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, docID string) (*model.Document, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) Find(ctx context.Context, owner, category, tag string) ([]model.Document, error) {
	args := m.Called(ctx, owner, category, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentService) AddMeta(ctx context.Context, req service.AddMetadataRequest) (*model.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) UpdateMeta(ctx context.Context, req service.UpdateMetadataRequest) (*model.Document, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ArchiveMeta(ctx context.Context, docID, metaID, actorID string) (*model.Document, error) {
	args := m.Called(ctx, docID, metaID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) UploadAttachment(ctx context.Context, r io.Reader, req service.UploadAttachmentRequest) (*model.Document, error) {
	args := m.Called(ctx, r, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) UpdateAttachment(ctx context.Context, r io.Reader, req service.UpdateAttachmentRequest) (*model.Document, error) {
	args := m.Called(ctx, r, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) ArchiveAttachment(ctx context.Context, docID, attachmentID, actorID string) (*model.Document, error) {
	args := m.Called(ctx, docID, attachmentID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentService) GetAttachment(ctx context.Context, docID, attachmentID string) (*model.Attachment, error) {
	args := m.Called(ctx, docID, attachmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attachment), args.Error(1)
}

func (m *MockDocumentService) OpenAttachment(ctx context.Context, docID, attachmentID string) (io.ReadCloser, *model.Attachment, error) {
	args := m.Called(ctx, docID, attachmentID)
	var rc io.ReadCloser
	if args.Get(0) != nil {
		rc = args.Get(0).(io.ReadCloser)
	}
	var att *model.Attachment
	if args.Get(1) != nil {
		att = args.Get(1).(*model.Attachment)
	}
	return rc, att, args.Error(2)
}
