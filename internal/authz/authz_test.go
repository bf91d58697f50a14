package authz

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
)

// fakeApps — репозиторий заявок в памяти для тестов авторизации.
type fakeApps struct {
	apps map[int64]*model.VisaApplication
}

func (f *fakeApps) Create(_ context.Context, _ *model.VisaApplication) error { return nil }
func (f *fakeApps) Update(_ context.Context, _ *model.VisaApplication) error { return nil }
func (f *fakeApps) Delete(_ context.Context, _ int64) error                  { return nil }
func (f *fakeApps) ListByApplicant(_ context.Context, _ int64) ([]*model.VisaApplication, error) {
	return nil, nil
}

func (f *fakeApps) GetByID(_ context.Context, id int64) (*model.VisaApplication, error) {
	app, ok := f.apps[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return app, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCanAccess(t *testing.T) {
	app := &model.VisaApplication{ID: 7, ApplicantID: 42}

	if !CanAccess(42, ActionUpdate, app) {
		t.Error("владелец должен иметь доступ")
	}
	if CanAccess(43, ActionView, app) {
		t.Error("чужой пользователь не должен иметь доступ")
	}
}

func TestChannelAuthorize(t *testing.T) {
	apps := &fakeApps{apps: map[int64]*model.VisaApplication{
		7: {ID: 7, ApplicantID: 42},
	}}
	auth := NewChannelAuthorizer(apps, testLogger())
	ctx := context.Background()

	tests := []struct {
		name    string
		userID  int64
		channel string
		wantErr error
	}{
		{"владелец", 42, "visa-applications.7", nil},
		{"чужая заявка", 43, "visa-applications.7", ErrForbidden},
		{"несуществующая заявка", 42, "visa-applications.99", ErrForbidden},
		{"неизвестный префикс", 42, "orders.7", ErrUnknownChannel},
		{"мусор вместо id", 42, "visa-applications.abc", ErrUnknownChannel},
		{"пустой канал", 42, "", ErrUnknownChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.Authorize(ctx, tt.userID, tt.channel)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("неожиданная ошибка: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ожидалась %v, получена %v", tt.wantErr, err)
			}
		})
	}
}
