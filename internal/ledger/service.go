package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence surface the service needs. The pgx Repository
// satisfies it; tests use an in-memory implementation.
type Store interface {
	CreateRecord(ctx context.Context, rec Record) error
	GetRecord(ctx context.Context, orgID, id uuid.UUID) (Record, error)
	ListEligible(ctx context.Context, orgID uuid.UUID, kind Kind, ownerRef, curr string) ([]Record, error)
}

// Service creates ledger records on behalf of upstream business flows
// (booking confirmation creates accruals, cancellation creates refund
// requests).
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs a Service instance.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a new free record.
func (s *Service) Create(ctx context.Context, in CreateRecordInput) (Record, error) {
	if err := in.Validate(); err != nil {
		return Record{}, err
	}
	now := s.now()
	rec := Record{
		ID:             uuid.New(),
		OrganizationID: in.OrganizationID,
		Kind:           in.Kind,
		OwnerRef:       in.OwnerRef,
		Currency:       in.Currency,
		Amount:         in.Amount,
		Status:         FreeStatus(in.Kind),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Get loads one record in the organization scope.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (Record, error) {
	return s.store.GetRecord(ctx, orgID, id)
}

// ListEligible returns the free records available for a case scope.
func (s *Service) ListEligible(ctx context.Context, orgID uuid.UUID, kind Kind, ownerRef, curr string) ([]Record, error) {
	return s.store.ListEligible(ctx, orgID, kind, ownerRef, curr)
}
