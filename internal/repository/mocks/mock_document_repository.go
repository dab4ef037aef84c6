package mocks

import (
	"context"

	"docvault/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindLiveByID(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindByOwnerCategory(ctx context.Context, owner, category, tag string) ([]model.Document, error) {
	args := m.Called(ctx, owner, category, tag)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindLiveWithMeta(ctx context.Context, docID, metaID string) (*model.Document, error) {
	args := m.Called(ctx, docID, metaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) FindLiveWithAttachment(ctx context.Context, docID, attachmentID string) (*model.Document, error) {
	args := m.Called(ctx, docID, attachmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentRepository) PushMetadata(ctx context.Context, docID string, entry model.MetadataEntry) (int64, error) {
	args := m.Called(ctx, docID, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDocumentRepository) MarkArchived(ctx context.Context, docID string, env model.AuditEnvelope) (int64, error) {
	args := m.Called(ctx, docID, env)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDocumentRepository) Replace(ctx context.Context, doc *model.Document) (*model.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}
