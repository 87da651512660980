package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

// memFingerprints implements interfaces.FingerprintStorage in memory
type memFingerprints struct {
	mu   sync.Mutex
	data map[string]*models.VideoFingerprint
}

func newMemFingerprints() *memFingerprints {
	return &memFingerprints{data: make(map[string]*models.VideoFingerprint)}
}

func (m *memFingerprints) Get(ctx context.Context, accountID string) (*models.VideoFingerprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.data[accountID]
	if !ok || !fp.Valid() {
		return nil, interfaces.ErrFingerprintNotFound
	}
	copied := *fp
	return &copied, nil
}

func (m *memFingerprints) Put(ctx context.Context, fp *models.VideoFingerprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *fp
	m.data[fp.AccountID] = &copied
	return nil
}

func (m *memFingerprints) Delete(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, accountID)
	return nil
}

// memTasks implements interfaces.TaskStorage in memory with the same
// transition and progress rules as the Badger implementation
type memTasks struct {
	mu   sync.Mutex
	data map[string]*models.TaskRecord
}

func newMemTasks() *memTasks {
	return &memTasks{data: make(map[string]*models.TaskRecord)}
}

func (m *memTasks) Create(ctx context.Context, task *models.TaskRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *task
	m.data[task.ID] = &copied
	return nil
}

func (m *memTasks) Get(ctx context.Context, id string) (*models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.data[id]
	if !ok {
		return nil, interfaces.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *memTasks) Patch(ctx context.Context, id string, patch models.TaskPatch) (*models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.data[id]
	if !ok {
		return nil, interfaces.ErrTaskNotFound
	}
	if patch.Status != nil && *patch.Status != task.Status {
		if !task.Status.CanTransition(*patch.Status) {
			return nil, fmt.Errorf("invalid task transition %s -> %s for task %s", task.Status, *patch.Status, id)
		}
		task.Status = *patch.Status
	}
	if patch.Progress != nil && *patch.Progress > task.Progress {
		p := *patch.Progress
		if p > 100 {
			p = 100
		}
		task.Progress = p
	}
	if patch.Message != nil {
		task.Message = *patch.Message
	}
	if patch.DestinationURL != nil {
		task.DestinationURL = *patch.DestinationURL
	}
	copied := *task
	return &copied, nil
}

func (m *memTasks) ListByAccount(ctx context.Context, accountID string) ([]*models.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.TaskRecord
	for _, task := range m.data {
		if task.AccountID == accountID {
			copied := *task
			out = append(out, &copied)
		}
	}
	return out, nil
}

// captureEnqueuer records enqueued jobs per queue
type captureEnqueuer struct {
	mu       sync.Mutex
	queues   []string
	payloads []interface{}
	err      error
}

func (c *captureEnqueuer) Enqueue(ctx context.Context, queue string, payload interface{}, opts interfaces.EnqueueOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.queues = append(c.queues, queue)
	c.payloads = append(c.payloads, payload)
	return "msg-id", nil
}

func (c *captureEnqueuer) calls() ([]string, []interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.queues...), append([]interface{}{}, c.payloads...)
}

// fakeSource implements interfaces.SourceClient with a fixed feed
type fakeSource struct {
	videos []models.DetectedVideo
	err    error
}

func (f *fakeSource) RecentVideos(ctx context.Context, accountID, secUID string) ([]models.DetectedVideo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

// fakeAccounts implements interfaces.AccountStorage over a fixed set
type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	tokens   map[string]string
}

func newFakeAccounts(accounts ...*models.Account) *fakeAccounts {
	f := &fakeAccounts{
		accounts: make(map[string]*models.Account),
		tokens:   make(map[string]string),
	}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeAccounts) Create(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccounts) Get(ctx context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, interfaces.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccounts) List(ctx context.Context) ([]*models.Account, error) { return nil, nil }

func (f *fakeAccounts) Update(ctx context.Context, account *models.Account) error { return nil }

func (f *fakeAccounts) Delete(ctx context.Context, id string) error { return nil }

func (f *fakeAccounts) SetRefreshToken(ctx context.Context, id string, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[id] = token
	return nil
}

// fakeUploader implements interfaces.DestinationUploader
type fakeUploader struct {
	url          string
	err          error
	rotatedToken string
	requests     []interfaces.UploadRequest
}

func (f *fakeUploader) Upload(ctx context.Context, req interfaces.UploadRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.rotatedToken != "" && req.OnTokenRotated != nil {
		req.OnTokenRotated(f.rotatedToken)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}
