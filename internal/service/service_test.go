package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// Фейковые репозитории в памяти для тестов сервисов.

type fakeApps struct {
	mu   sync.Mutex
	apps map[int64]*model.VisaApplication
	err  error // принудительная ошибка для всех вызовов
}

func (f *fakeApps) Create(_ context.Context, _ *model.VisaApplication) error { return f.err }
func (f *fakeApps) Update(_ context.Context, _ *model.VisaApplication) error { return f.err }
func (f *fakeApps) Delete(_ context.Context, _ int64) error                  { return f.err }
func (f *fakeApps) ListByApplicant(_ context.Context, _ int64) ([]*model.VisaApplication, error) {
	return nil, f.err
}

func (f *fakeApps) GetByID(_ context.Context, id int64) (*model.VisaApplication, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

type fakeCats struct {
	cats map[int64]*model.FileCategory
}

func (f *fakeCats) GetByID(_ context.Context, id int64) (*model.FileCategory, error) {
	cat, ok := f.cats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cat, nil
}

func (f *fakeCats) List(_ context.Context) ([]*model.FileCategory, error) {
	var out []*model.FileCategory
	for _, c := range f.cats {
		out = append(out, c)
	}
	return out, nil
}

type fakeFiles struct {
	mu        sync.Mutex
	nextID    int64
	byPath    map[string]*model.VisaApplicantFile
	createErr error // принудительная ошибка Create
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{nextID: 1, byPath: map[string]*model.VisaApplicantFile{}}
}

func (f *fakeFiles) Create(_ context.Context, rec *model.VisaApplicantFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.byPath[rec.Path]; exists {
		return repository.ErrConflict
	}
	rec.ID = f.nextID
	f.nextID++
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	f.byPath[rec.Path] = &cp
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id int64) (*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byPath {
		if rec.ID == id {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFiles) GetByPath(_ context.Context, path string) (*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byPath[path]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeFiles) ListByApplication(_ context.Context, appID int64) ([]*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.VisaApplicantFile
	for _, rec := range f.byPath {
		if rec.VisaApplicationID == appID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFiles) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for path, rec := range f.byPath {
		if rec.ID == id {
			delete(f.byPath, path)
			return nil
		}
	}
	return repository.ErrNotFound
}

// testLogger — логгер для тестов, пишет только ошибки.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestStore создаёт diskstore с временными каталогами.
func newTestStore(t *testing.T) *diskstore.Manager {
	t.Helper()
	store, err := diskstore.NewManager(map[string]string{
		diskstore.StoreTemp:    t.TempDir(),
		diskstore.StoreDurable: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Ошибка создания diskstore: %v", err)
	}
	return store
}
