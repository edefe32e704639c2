package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/service/verification"
)

// MockVerificationService implements verification.Service for handler tests.
type MockVerificationService struct {
	StartVerificationFn func(ctx context.Context, learnerID, itemID uuid.UUID) (*domain.CardState, error)
	RecordAttemptFn     func(ctx context.Context, req verification.AttemptRequest) (*verification.AttemptResult, error)

	// Requests holds every RecordAttempt request in call order.
	Requests []verification.AttemptRequest
}

var _ verification.Service = (*MockVerificationService)(nil)

// StartVerification implements verification.Service
func (m *MockVerificationService) StartVerification(
	ctx context.Context,
	learnerID, itemID uuid.UUID,
) (*domain.CardState, error) {
	if m.StartVerificationFn != nil {
		return m.StartVerificationFn(ctx, learnerID, itemID)
	}
	return nil, nil
}

// RecordAttempt implements verification.Service
func (m *MockVerificationService) RecordAttempt(
	ctx context.Context,
	req verification.AttemptRequest,
) (*verification.AttemptResult, error) {
	m.Requests = append(m.Requests, req)
	if m.RecordAttemptFn != nil {
		return m.RecordAttemptFn(ctx, req)
	}
	return nil, nil
}
