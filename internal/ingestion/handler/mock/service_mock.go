package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/vantio/api/wa-crm-relay/internal/ingestion/handler"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// IngestServiceMock mocks the handler.IngestService interface
type IngestServiceMock struct {
	mock.Mock
}

var _ handler.IngestService = (*IngestServiceMock)(nil)

// ProcessUpsert mocks the ProcessUpsert method
func (m *IngestServiceMock) ProcessUpsert(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}

// ProcessUpdate mocks the ProcessUpdate method
func (m *IngestServiceMock) ProcessUpdate(ctx context.Context, payload *model.WebhookPayload, metadata *model.LastMetadata) error {
	args := m.Called(ctx, payload, metadata)
	return args.Error(0)
}
