package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/launchpad/internal/billing"
	"github.com/hitoshi/launchpad/internal/model"
)

// mockSubscriptionRepository はテスト用のSubscriptionRepositoryモック。
type mockSubscriptionRepository struct {
	listExpiredFunc func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error)
}

func (m *mockSubscriptionRepository) FindByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*model.Subscription, error) {
	return nil, nil
}

func (m *mockSubscriptionRepository) FindLatestEntitledByUserID(ctx context.Context, userID string) (*model.Subscription, error) {
	return nil, nil
}

func (m *mockSubscriptionRepository) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return nil, nil
}

func (m *mockSubscriptionRepository) Create(ctx context.Context, sub *model.Subscription) error {
	return nil
}

func (m *mockSubscriptionRepository) UpdateSyncFields(ctx context.Context, stripeSubscriptionID string, status model.SubscriptionStatus, cancelAtPeriodEnd bool, currentPeriodEnd time.Time) error {
	return nil
}

func (m *mockSubscriptionRepository) MarkCanceledByUserID(ctx context.Context, userID string, deletedAt time.Time) error {
	return nil
}

func (m *mockSubscriptionRepository) ListExpiredEntitled(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
	return m.listExpiredFunc(ctx, now, limit)
}

// mockSyncService はテスト用のSyncServiceInterfaceモック。
type mockSyncService struct {
	mu     sync.Mutex
	synced []string
	err    error
}

func (m *mockSyncService) SyncSubscription(ctx context.Context, stripeSubscriptionID string) (*billing.SyncResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, stripeSubscriptionID)
	if m.err != nil {
		return nil, m.err
	}
	return &billing.SyncResult{StripeSubscriptionID: stripeSubscriptionID}, nil
}

func (m *mockSyncService) syncedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.synced...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestReconciler_RunOnce_SyncsExpiredRows(t *testing.T) {
	repo := &mockSubscriptionRepository{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
			return []*model.Subscription{
				{StripeSubscriptionID: "sub_1"},
				{StripeSubscriptionID: "sub_2"},
			}, nil
		},
	}
	service := &mockSyncService{}

	r := NewReconciler(repo, service, testLogger(), 2)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	synced := service.syncedIDs()
	if len(synced) != 2 {
		t.Fatalf("expected 2 syncs, got %d", len(synced))
	}
}

func TestReconciler_RunOnce_NoTargets(t *testing.T) {
	repo := &mockSubscriptionRepository{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
			return nil, nil
		},
	}
	service := &mockSyncService{}

	r := NewReconciler(repo, service, testLogger(), 2)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(service.syncedIDs()) != 0 {
		t.Error("no syncs expected when there are no targets")
	}
}

func TestReconciler_RunOnce_ListFailureIsReturned(t *testing.T) {
	repo := &mockSubscriptionRepository{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
			return nil, errors.New("db down")
		},
	}

	r := NewReconciler(repo, &mockSyncService{}, testLogger(), 2)
	if err := r.RunOnce(context.Background()); err == nil {
		t.Error("expected error when listing targets fails")
	}
}

func TestReconciler_RunOnce_IndividualSyncFailuresContinue(t *testing.T) {
	repo := &mockSubscriptionRepository{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
			return []*model.Subscription{
				{StripeSubscriptionID: "sub_1"},
				{StripeSubscriptionID: "sub_2"},
				{StripeSubscriptionID: "sub_3"},
			}, nil
		},
	}
	service := &mockSyncService{err: errors.New("stripe unavailable")}

	r := NewReconciler(repo, service, testLogger(), 1)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("individual sync failures must not fail the cycle: %v", err)
	}
	if len(service.syncedIDs()) != 3 {
		t.Errorf("all rows should be attempted, got %d", len(service.syncedIDs()))
	}
}

func TestReconciler_Start_StopsOnContextCancel(t *testing.T) {
	repo := &mockSubscriptionRepository{
		listExpiredFunc: func(ctx context.Context, now time.Time, limit int) ([]*model.Subscription, error) {
			return nil, nil
		},
	}

	r := NewReconciler(repo, &mockSyncService{}, testLogger(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Start should return after context cancellation")
	}
}
