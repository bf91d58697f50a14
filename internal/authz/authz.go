// Пакет authz — правила доступа к заявкам и приватным каналам событий.
// Правило одно: заявка принадлежит заявителю, чужие заявки невидимы.
package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/visaflow/visaflow/internal/domain/model"
	"github.com/visaflow/visaflow/internal/repository"
)

// Ошибки авторизации.
var (
	// ErrForbidden — пользователь не владеет ресурсом.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrUnknownChannel — имя канала не распознано.
	ErrUnknownChannel = errors.New("неизвестный канал")
)

// Action — тип операции над заявкой.
type Action string

// Операции над заявкой.
const (
	ActionView   Action = "view"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// CanAccess проверяет право пользователя на операцию с заявкой.
// Все операции разрешены только владельцу заявки.
func CanAccess(userID int64, _ Action, app *model.VisaApplication) bool {
	return app.ApplicantID == userID
}

// ChannelAuthorizer проверяет право подписки на приватный канал событий.
type ChannelAuthorizer struct {
	apps   repository.ApplicationRepository
	logger *slog.Logger
}

// NewChannelAuthorizer создаёт авторизатор каналов.
func NewChannelAuthorizer(apps repository.ApplicationRepository, logger *slog.Logger) *ChannelAuthorizer {
	return &ChannelAuthorizer{
		apps:   apps,
		logger: logger.With(slog.String("component", "channel-authorizer")),
	}
}

// Authorize разрешает подписку на канал visa-applications.{id}, если
// заявка существует и принадлежит пользователю. Несуществующая заявка
// и чужая заявка неразличимы для клиента: обе дают ErrForbidden.
func (a *ChannelAuthorizer) Authorize(ctx context.Context, userID int64, channel string) error {
	appID, err := model.ParseApplicationChannel(channel)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	app, err := a.apps.GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("ошибка проверки канала: %w", err)
	}

	if !CanAccess(userID, ActionView, app) {
		a.logger.Warn("Отказ в подписке на чужой канал",
			slog.Int64("user_id", userID),
			slog.String("channel", channel),
		)
		return ErrForbidden
	}
	return nil
}
