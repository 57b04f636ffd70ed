package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore serializes transactions with a single mutex, which is stricter
// than the per-key advisory locks of the Postgres store.
type memStore struct {
	mu         sync.Mutex
	entries    map[string]Entry
	referenced map[string]bool
	locked     [][]string
}

func newMemStore() *memStore {
	return &memStore{entries: map[string]Entry{}, referenced: map[string]bool{}}
}

func (m *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make(map[string]Entry, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	if err := fn(memTx{m}); err != nil {
		m.entries = snapshot
		return err
	}
	return nil
}

type memTx struct{ m *memStore }

func (t memTx) Lock(_ context.Context, keys ...string) error {
	t.m.locked = append(t.m.locked, keys)
	return nil
}

func (t memTx) EntriesOn(_ context.Context, w Weekday, classID, teacherID string) ([]Entry, error) {
	var out []Entry
	for _, e := range t.m.entries {
		if e.Weekday == w && (e.ClassID == classID || e.TeacherID == teacherID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t memTx) Get(_ context.Context, id string) (Entry, error) {
	e, ok := t.m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (t memTx) Insert(_ context.Context, e *Entry) error {
	t.m.entries[e.ID] = *e
	return nil
}

func (t memTx) Update(_ context.Context, e *Entry) error {
	if _, ok := t.m.entries[e.ID]; !ok {
		return ErrNotFound
	}
	t.m.entries[e.ID] = *e
	return nil
}

func (t memTx) Delete(_ context.Context, id string) error {
	delete(t.m.entries, id)
	return nil
}

func (t memTx) Referenced(_ context.Context, id string) (bool, error) {
	return t.m.referenced[id], nil
}

var (
	class1   = uuid.NewString()
	class2   = uuid.NewString()
	teacher1 = uuid.NewString()
	teacher2 = uuid.NewString()
	subject  = uuid.NewString()
)

func input(class, teacher string, w Weekday, start, end Clock) Input {
	return Input{ClassID: class, SubjectID: subject, TeacherID: teacher, Weekday: w, Start: start, End: end}
}

func TestServiceScenario(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	a, err := svc.Create(ctx, input(class1, teacher1, Monday, 8*60, 9*60))
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)

	_, err = svc.Create(ctx, input(class1, teacher2, Monday, 8*60+30, 9*60+30))
	assert.ErrorIs(t, err, ErrClassConflict)

	_, err = svc.Create(ctx, input(class1, teacher1, Monday, 9*60, 10*60))
	assert.NoError(t, err)
}

func TestServiceCreateValidates(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	_, err := svc.Create(ctx, input("", teacher1, Monday, 480, 540))
	assert.Error(t, err)

	_, err = svc.Create(ctx, input("not-a-uuid", teacher1, Monday, 480, 540))
	assert.Error(t, err)

	_, err = svc.Create(ctx, input(class1, teacher1, Monday, 540, 480))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestServiceLocksClassAndTeacher(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, zap.NewNop())
	_, err := svc.Create(context.Background(), input(class1, teacher1, Wednesday, 480, 540))
	require.NoError(t, err)
	require.Len(t, st.locked, 1)
	assert.Equal(t, []string{"class:" + class1 + ":3", "teacher:" + teacher1 + ":3"}, st.locked[0])
}

func TestServiceUpdateExcludesSelf(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	a, err := svc.Create(ctx, input(class1, teacher1, Monday, 480, 540))
	require.NoError(t, err)
	b, err := svc.Create(ctx, input(class2, teacher2, Monday, 480, 540))
	require.NoError(t, err)

	moved, err := svc.Update(ctx, a.ID, input(class1, teacher1, Monday, 500, 560))
	require.NoError(t, err)
	assert.Equal(t, Clock(500), moved.Start)
	assert.Equal(t, a.CreatedAt, moved.CreatedAt)

	_, err = svc.Update(ctx, b.ID, input(class2, teacher1, Monday, 530, 600))
	assert.ErrorIs(t, err, ErrTeacherConflict)

	_, err = svc.Update(ctx, uuid.NewString(), input(class1, teacher1, Friday, 480, 540))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestServiceDelete(t *testing.T) {
	st := newMemStore()
	svc := NewService(st, zap.NewNop())
	ctx := context.Background()

	a, err := svc.Create(ctx, input(class1, teacher1, Monday, 480, 540))
	require.NoError(t, err)

	st.referenced[a.ID] = true
	assert.ErrorIs(t, svc.Delete(ctx, a.ID), ErrInUse)

	st.referenced[a.ID] = false
	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.ErrorIs(t, svc.Delete(ctx, a.ID), ErrNotFound)
}

func TestServiceConcurrentOverlappingCreates(t *testing.T) {
	svc := NewService(newMemStore(), zap.NewNop())
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(ctx, input(class1, uuid.NewString(), Thursday, Clock(480+i), Clock(540+i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrClassConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, conflicts)
}
