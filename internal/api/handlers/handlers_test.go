package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/visaflow/visaflow/internal/api/middleware"
	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
	"github.com/visaflow/visaflow/internal/storage/diskstore"
)

// Фейковые репозитории для handler-тестов.

type fakeApps struct {
	mu     sync.Mutex
	nextID int64
	apps   map[int64]*model.VisaApplication
}

func newFakeApps() *fakeApps {
	return &fakeApps{nextID: 1, apps: map[int64]*model.VisaApplication{}}
}

func (f *fakeApps) add(app *model.VisaApplication) *model.VisaApplication {
	f.mu.Lock()
	defer f.mu.Unlock()
	app.ID = f.nextID
	f.nextID++
	app.CreatedAt = time.Now().UTC()
	app.UpdatedAt = app.CreatedAt
	f.apps[app.ID] = app
	return app
}

func (f *fakeApps) Create(_ context.Context, app *model.VisaApplication) error {
	f.add(app)
	return nil
}

func (f *fakeApps) GetByID(_ context.Context, id int64) (*model.VisaApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (f *fakeApps) ListByApplicant(_ context.Context, applicantID int64) ([]*model.VisaApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.VisaApplication
	for _, app := range f.apps {
		if app.ApplicantID == applicantID {
			cp := *app
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeApps) Update(_ context.Context, app *model.VisaApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[app.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *app
	f.apps[app.ID] = &cp
	return nil
}

func (f *fakeApps) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.apps, id)
	return nil
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
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.VisaApplicantFile
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{nextID: 1, byID: map[int64]*model.VisaApplicantFile{}}
}

func (f *fakeFiles) Create(_ context.Context, rec *model.VisaApplicantFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Path == rec.Path {
			return repository.ErrConflict
		}
	}
	rec.ID = f.nextID
	f.nextID++
	rec.CreatedAt = time.Now().UTC()
	cp := *rec
	f.byID[rec.ID] = &cp
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id int64) (*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeFiles) GetByPath(_ context.Context, path string) (*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.byID {
		if rec.Path == path {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeFiles) ListByApplication(_ context.Context, appID int64) ([]*model.VisaApplicantFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.VisaApplicantFile
	for _, rec := range f.byID {
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
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
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

// asUser — middleware, подставляющий user id в контекст (замена JWT в тестах).
func asUser(userID int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.ContextKeyUserID, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// newTestRouter монтирует маршруты заявок и файлов как в боевом сервере.
func newTestRouter(userID int64, apps *ApplicationsHandler, files *FilesHandler) *chi.Mux {
	router := chi.NewRouter()
	router.Use(asUser(userID))
	router.Route("/api/v1/visa-applications", func(r chi.Router) {
		r.Get("/", apps.List)
		r.Post("/", apps.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", apps.Get)
			r.Put("/", apps.Update)
			r.Delete("/", apps.Delete)
			if files != nil {
				r.Post("/files", files.Upload)
				r.Get("/files", files.List)
				r.Delete("/files/{fileID}", files.Delete)
			}
		})
	})
	return router
}
