package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/vantio/api/wa-crm-relay/internal/forwarder"
	"gitlab.com/vantio/api/wa-crm-relay/internal/model"
)

// ClientMock mocks the forwarder.Client interface
type ClientMock struct {
	mock.Mock
}

var _ forwarder.Client = (*ClientMock)(nil)

// ForwardEvent mocks the ForwardEvent method
func (m *ClientMock) ForwardEvent(ctx context.Context, url string, payload *model.ForwardPayload) error {
	args := m.Called(ctx, url, payload)
	return args.Error(0)
}

// SendMessage mocks the SendMessage method
func (m *ClientMock) SendMessage(ctx context.Context, url string, request *model.SendRequest) (*model.SendResponse, error) {
	args := m.Called(ctx, url, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SendResponse), args.Error(1)
}
