package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/flowbill/flowbill/pkg/mailer"
)

// MockMailer is a mock implementation of the mailer.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, message mailer.Message) error {
	args := m.Called(ctx, message)

	return args.Error(0)
}
