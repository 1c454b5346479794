package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	records map[uuid.UUID]Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *memoryStore) CreateRecord(ctx context.Context, rec Record) error {
	s.records[rec.ID] = rec
	return nil
}

func (s *memoryStore) GetRecord(ctx context.Context, orgID, id uuid.UUID) (Record, error) {
	rec, ok := s.records[id]
	if !ok || rec.OrganizationID != orgID {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *memoryStore) ListEligible(ctx context.Context, orgID uuid.UUID, kind Kind, ownerRef, curr string) ([]Record, error) {
	var out []Record
	for _, rec := range s.records {
		if rec.OrganizationID == orgID && rec.Kind == kind && rec.OwnerRef == ownerRef && rec.Currency == curr && rec.Eligible() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestCreateRecord(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)
	orgID := uuid.New()

	rec, err := svc.Create(context.Background(), CreateRecordInput{
		OrganizationID: orgID,
		Kind:           KindAccrual,
		OwnerRef:       "SUP-1",
		Currency:       "EUR",
		Amount:         decimal.NewFromInt(120),
	})
	require.NoError(t, err)
	require.Equal(t, StatusAccrued, rec.Status)
	require.Nil(t, rec.CaseID)
	require.True(t, rec.Eligible())

	loaded, err := svc.Get(context.Background(), orgID, rec.ID)
	require.NoError(t, err)
	require.True(t, loaded.Amount.Equal(decimal.NewFromInt(120)))

	refund, err := svc.Create(context.Background(), CreateRecordInput{
		OrganizationID: orgID,
		Kind:           KindRefundRequest,
		OwnerRef:       "BK-1",
		Currency:       "EUR",
		Amount:         decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, refund.Status)
}

func TestCreateRecordValidation(t *testing.T) {
	svc := NewService(newMemoryStore())
	orgID := uuid.New()

	cases := []CreateRecordInput{
		{Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(1)},
		{OrganizationID: orgID, Kind: Kind("OTHER"), OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(1)},
		{OrganizationID: orgID, Kind: KindAccrual, Currency: "EUR", Amount: decimal.NewFromInt(1)},
		{OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "XX", Amount: decimal.NewFromInt(1)},
		{OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR"},
		{OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(-3)},
	}
	for _, in := range cases {
		_, err := svc.Create(context.Background(), in)
		require.Error(t, err)
	}
}

func TestListEligibleSkipsLockedAndReversed(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store)
	orgID := uuid.New()

	free, err := svc.Create(context.Background(), CreateRecordInput{
		OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	locked, err := svc.Create(context.Background(), CreateRecordInput{
		OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	caseID := uuid.New()
	rec := store.records[locked.ID]
	rec.Status = StatusInCase
	rec.CaseID = &caseID
	store.records[locked.ID] = rec

	reversed, err := svc.Create(context.Background(), CreateRecordInput{
		OrganizationID: orgID, Kind: KindAccrual, OwnerRef: "SUP-1", Currency: "EUR", Amount: decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	rec = store.records[reversed.ID]
	rec.Status = StatusReversed
	store.records[reversed.ID] = rec

	eligible, err := svc.ListEligible(context.Background(), orgID, KindAccrual, "SUP-1", "EUR")
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	require.Equal(t, free.ID, eligible[0].ID)
}

func TestFreeStatus(t *testing.T) {
	require.Equal(t, StatusAccrued, FreeStatus(KindAccrual))
	require.Equal(t, StatusRequested, FreeStatus(KindRefundRequest))
}
