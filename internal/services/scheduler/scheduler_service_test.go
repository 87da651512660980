package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

// fakeAccountStorage implements interfaces.AccountStorage for testing
type fakeAccountStorage struct {
	accounts []*models.Account
	listErr  error
}

func (f *fakeAccountStorage) Create(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccountStorage) Get(ctx context.Context, id string) (*models.Account, error) {
	for _, a := range f.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, interfaces.ErrAccountNotFound
}

func (f *fakeAccountStorage) List(ctx context.Context) ([]*models.Account, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

func (f *fakeAccountStorage) Update(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccountStorage) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeAccountStorage) SetRefreshToken(ctx context.Context, id string, token string) error {
	return nil
}

// fakeEnqueuer records every enqueue call
type fakeEnqueuer struct {
	queues   []string
	payloads []interface{}
	dedups   []string
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, queue string, payload interface{}, opts interfaces.EnqueueOptions) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.queues = append(f.queues, queue)
	f.payloads = append(f.payloads, payload)
	f.dedups = append(f.dedups, opts.DedupKey)
	return "msg-id", nil
}

func TestRunCycleEnqueuesEligibleAccounts(t *testing.T) {
	accounts := &fakeAccountStorage{accounts: []*models.Account{
		{ID: "acct-1", SecUID: "sec-1", RefreshToken: "tok-1"},
		{ID: "acct-2", SecUID: "sec-2", RefreshToken: "tok-2"},
	}}
	enqueuer := &fakeEnqueuer{}
	svc := NewService(accounts, enqueuer, arbor.NewLogger())

	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, enqueuer.payloads, 2)
	assert.Equal(t, []string{models.QueueCheck, models.QueueCheck}, enqueuer.queues)

	job := enqueuer.payloads[0].(models.CheckJob)
	assert.Equal(t, "acct-1", job.AccountID)
	assert.Equal(t, "sec-1", job.SecUID)

	assert.Equal(t, []string{"check-acct-1", "check-acct-2"}, enqueuer.dedups)
}

func TestRunCycleSkipsAccountsWithoutCredential(t *testing.T) {
	accounts := &fakeAccountStorage{accounts: []*models.Account{
		{ID: "acct-1", SecUID: "sec-1", RefreshToken: "tok-1"},
		{ID: "acct-2", SecUID: "sec-2"}, // No credential
	}}
	enqueuer := &fakeEnqueuer{}
	svc := NewService(accounts, enqueuer, arbor.NewLogger())

	require.NoError(t, svc.RunCycle(context.Background()))

	require.Len(t, enqueuer.payloads, 1)
	job := enqueuer.payloads[0].(models.CheckJob)
	assert.Equal(t, "acct-1", job.AccountID)
}

func TestRunCycleEnumerationFailureSkipsCycle(t *testing.T) {
	accounts := &fakeAccountStorage{listErr: fmt.Errorf("storage down")}
	enqueuer := &fakeEnqueuer{}
	svc := NewService(accounts, enqueuer, arbor.NewLogger())

	assert.Error(t, svc.RunCycle(context.Background()))
	assert.Empty(t, enqueuer.payloads)
}

func TestRunCycleContinuesPastEnqueueFailure(t *testing.T) {
	accounts := &fakeAccountStorage{accounts: []*models.Account{
		{ID: "acct-1", SecUID: "sec-1", RefreshToken: "tok-1"},
	}}
	enqueuer := &fakeEnqueuer{err: fmt.Errorf("queue full")}
	svc := NewService(accounts, enqueuer, arbor.NewLogger())

	// Individual enqueue failures do not fail the cycle
	assert.NoError(t, svc.RunCycle(context.Background()))
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	svc := NewService(&fakeAccountStorage{}, &fakeEnqueuer{}, arbor.NewLogger())
	assert.Error(t, svc.Start("not a schedule"))
	assert.False(t, svc.IsRunning())
}

func TestStartAndStop(t *testing.T) {
	svc := NewService(&fakeAccountStorage{}, &fakeEnqueuer{}, arbor.NewLogger())

	require.NoError(t, svc.Start("0 0 * * * *"))
	assert.True(t, svc.IsRunning())

	assert.Error(t, svc.Start("0 0 * * * *")) // Already running

	require.NoError(t, svc.Stop())
	assert.False(t, svc.IsRunning())
}

func TestStartAcceptsFiveFieldSchedule(t *testing.T) {
	svc := NewService(&fakeAccountStorage{}, &fakeEnqueuer{}, arbor.NewLogger())

	require.NoError(t, svc.Start("*/5 * * * *"))
	defer svc.Stop()
	assert.True(t, svc.IsRunning())
}
