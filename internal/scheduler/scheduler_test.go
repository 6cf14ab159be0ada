package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tudu/server/internal/logger"
	"github.com/tudu/server/internal/model"
	"github.com/tudu/server/internal/notify"
	apperrors "github.com/tudu/server/pkg/errors"
)

type fakeTaskRepo struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]model.Task
	findDueErr error
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uuid.UUID]model.Task)}
}

func (f *fakeTaskRepo) add(task model.Task) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeTaskRepo) Create(_ context.Context, userID uuid.UUID, title string, description *string, dueAt time.Time) (model.Task, error) {
	return f.add(model.Task{UserID: userID, Title: title, Description: description, DueAt: dueAt}), nil
}

func (f *fakeTaskRepo) GetByID(_ context.Context, userID, taskID uuid.UUID) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != userID {
		return model.Task{}, apperrors.ErrTaskNotFound
	}
	return task, nil
}

func (f *fakeTaskRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Task
	for _, task := range f.tasks {
		if task.UserID == userID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTaskRepo) Update(_ context.Context, userID uuid.UUID, task model.Task) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.tasks[task.ID]
	if !ok || existing.UserID != userID {
		return model.Task{}, apperrors.ErrTaskNotFound
	}
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeTaskRepo) Delete(_ context.Context, userID, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok || task.UserID != userID {
		return apperrors.ErrTaskNotFound
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeTaskRepo) CountByUser(_ context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, task := range f.tasks {
		if task.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeTaskRepo) FindDue(_ context.Context, now time.Time, limit int) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findDueErr != nil {
		return nil, f.findDueErr
	}
	var due []model.Task
	for _, task := range f.tasks {
		if !task.DueAt.After(now) && !task.Notified && !task.Completed {
			due = append(due, task)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DueAt.Before(due[j].DueAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeTaskRepo) MarkNotified(_ context.Context, taskID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return apperrors.ErrTaskNotFound
	}
	task.Notified = true
	f.tasks[taskID] = task
	return nil
}

func (f *fakeTaskRepo) notifiedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, task := range f.tasks {
		if task.Notified {
			n++
		}
	}
	return n
}

type fakeUserStore struct {
	users map[uuid.UUID]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]model.User)}
}

func (f *fakeUserStore) addUser(deviceToken string) model.User {
	user := model.User{ID: uuid.New(), Email: fmt.Sprintf("%s@x.com", uuid.NewString()[:8])}
	if deviceToken != "" {
		user.DeviceToken = &deviceToken
	}
	f.users[user.ID] = user
	return user
}

func (f *fakeUserStore) Create(_ context.Context, _, _, _, _ string) (model.User, error) {
	return model.User{}, errors.New("not implemented")
}

func (f *fakeUserStore) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	user, ok := f.users[id]
	if !ok {
		return model.User{}, apperrors.ErrIdentityNotFound
	}
	return user, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, _ string) (model.User, error) {
	return model.User{}, apperrors.ErrIdentityNotFound
}

func (f *fakeUserStore) ExistsByEmail(_ context.Context, _ string) (bool, error) { return false, nil }

func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, _, _ string) error { return nil }

func (f *fakeUserStore) UpdateDeviceToken(_ context.Context, _ uuid.UUID, _ string) error { return nil }

type sentPush struct {
	address string
	title   string
	body    string
	data    map[string]string
}

type fakeGateway struct {
	mu      sync.Mutex
	sent    []sentPush
	sendErr error
}

func (f *fakeGateway) Send(_ context.Context, address, title, body string, data map[string]string) (notify.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return notify.Receipt{}, f.sendErr
	}
	f.sent = append(f.sent, sentPush{address: address, title: title, body: body, data: data})
	return notify.Receipt{MessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

func (f *fakeGateway) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestScheduler(tasks *fakeTaskRepo, users *fakeUserStore, gateway *fakeGateway) *Scheduler {
	return New(tasks, users, gateway, logger.New(8), time.Minute, 100, time.UTC)
}

func TestTick_notifiesAndMarksDueTasks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	desc := "water the plants"
	task := taskRepo.add(model.Task{UserID: owner.ID, Title: "Plants", Description: &desc, DueAt: time.Now().Add(-5 * time.Second)})

	s := newTestScheduler(taskRepo, users, gateway)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Equal(t, 1, gateway.count())
	push := gateway.sent[0]
	assert.Equal(t, "token-1", push.address)
	assert.Equal(t, "Task Due: Plants", push.title)
	assert.Equal(t, "water the plants", push.body)
	assert.Equal(t, task.ID.String(), push.data["task_id"])

	assert.Equal(t, 1, taskRepo.notifiedCount())
}

func TestTick_defaultBodyWhenNoDescription(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Dishes", DueAt: time.Now().Add(-time.Second)})

	s := newTestScheduler(taskRepo, users, gateway)
	_, err := s.Tick(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, gateway.count())
	assert.Equal(t, "Your task is due now!", gateway.sent[0].body)
}

func TestTick_idempotentAcrossTicks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Once", DueAt: time.Now().Add(-time.Minute)})

	s := newTestScheduler(taskRepo, users, gateway)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Immediate second tick on the same store state: nothing matches
	n, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, gateway.count(), "at most one notification per task")
}

func TestTick_missingDeviceTokenIsTerminal(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("") // no deliverable channel
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Silent", DueAt: time.Now().Add(-5 * time.Second)})

	s := newTestScheduler(taskRepo, users, gateway)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 0, gateway.count(), "no gateway call without an address")
	assert.Equal(t, 1, taskRepo.notifiedCount(), "task is still marked notified")
}

func TestTick_deliveryFailureStillMarks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{sendErr: apperrors.ErrDeliveryFailed(errors.New("provider down"))}

	owner := users.addUser("token-1")
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Flaky", DueAt: time.Now().Add(-time.Second)})

	s := newTestScheduler(taskRepo, users, gateway)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, taskRepo.notifiedCount(), "delivery failure must not block the notified flag")
}

func TestTick_skipsCompletedAndFutureTasks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Done", DueAt: time.Now().Add(-time.Minute), Completed: true})
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Later", DueAt: time.Now().Add(time.Hour)})

	s := newTestScheduler(taskRepo, users, gateway)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, gateway.count())
	assert.Equal(t, 0, taskRepo.notifiedCount())
}

func TestTick_catchUpAcrossBatchCap(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	base := time.Now().Add(-3 * time.Hour)
	for i := 0; i < 150; i++ {
		taskRepo.add(model.Task{
			UserID: owner.ID,
			Title:  fmt.Sprintf("backlog-%03d", i),
			DueAt:  base.Add(time.Duration(i) * time.Second),
		})
	}

	s := newTestScheduler(taskRepo, users, gateway)

	// First tick after the outage: exactly the cap, earliest-due first
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	require.Equal(t, 100, gateway.count())
	for i := 1; i < len(gateway.sent); i++ {
		assert.LessOrEqual(t, gateway.sent[i-1].title, gateway.sent[i].title,
			"notifications must go out in due order")
	}

	// Second tick drains the spill
	n, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Equal(t, 150, gateway.count())
	assert.Equal(t, 150, taskRepo.notifiedCount())
}

func TestTick_queryFailureAbortsWholeTick(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	owner := users.addUser("token-1")
	taskRepo.add(model.Task{UserID: owner.ID, Title: "Pending", DueAt: time.Now().Add(-time.Second)})
	taskRepo.findDueErr = errors.New("store unreachable")

	s := newTestScheduler(taskRepo, users, gateway)
	_, err := s.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, gateway.count())
	assert.Equal(t, 0, taskRepo.notifiedCount(), "aborted tick must not mutate any task")

	// Next tick self-heals once the store is back
	taskRepo.findDueErr = nil
	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_stopsOnContextCancel(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	users := newFakeUserStore()
	gateway := &fakeGateway{}

	s := New(taskRepo, users, gateway, logger.New(8), 10*time.Millisecond, 100, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
