package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jaehyunUm/mats-backend-sub000/pkg/db/models"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/enums"
	pkgerrors "github.com/jaehyunUm/mats-backend-sub000/pkg/errors"
	"github.com/jaehyunUm/mats-backend-sub000/pkg/pagination"
)

// Service writes and reads dojang notifications. It is the single writer used
// by billing, webhooks and account flows, and backs the polling endpoints.
type Service interface {
	Notify(ctx context.Context, input NotifyInput) (*models.Notification, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	UnreadCount(ctx context.Context, dojangCode string) (int64, error)
	MarkRead(ctx context.Context, dojangCode string, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, dojangCode string) (int64, error)
	Delete(ctx context.Context, dojangCode string, notificationID uuid.UUID) error
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NotifyInput is one notification to append for a dojang.
type NotifyInput struct {
	DojangCode string
	Type       enums.NotificationType
	Title      string
	Message    string
	Link       string
}

// ListParams configures pagination for notifications.
type ListParams struct {
	DojangCode string
	Limit      int
	Cursor     string
	UnreadOnly bool
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult = pagination.Page[models.Notification]

// NewService wires notifications dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Notify(ctx context.Context, input NotifyInput) (*models.Notification, error) {
	if strings.TrimSpace(input.DojangCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid notification type")
	}
	if strings.TrimSpace(input.Message) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification message required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultTitle(input.Type)
	}

	notification := &models.Notification{
		DojangCode: input.DojangCode,
		Type:       input.Type,
		Title:      title,
		Message:    input.Message,
		CreatedAt:  s.now().UTC(),
	}
	if link := strings.TrimSpace(input.Link); link != "" {
		notification.Link = &link
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	return notification, nil
}

func defaultTitle(t enums.NotificationType) string {
	switch t {
	case enums.NotificationTypePaymentFailed:
		return "Payment failed"
	case enums.NotificationTypePaymentSkipped:
		return "Payment skipped"
	case enums.NotificationTypeBillingExhausted:
		return "Automatic billing stopped"
	case enums.NotificationTypeAccountDisconnected:
		return "Payment account disconnected"
	default:
		return "Notice"
	}
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.DojangCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}

	query := listNotificationsParams{
		DojangCode: params.DojangCode,
		Limit:      pagination.LimitWithBuffer(params.Limit),
		UnreadOnly: params.UnreadOnly,
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := pagination.Trim(rows, params.Limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt, ID: n.ID}
	})
	return &page, nil
}

func (s *service) UnreadCount(ctx context.Context, dojangCode string) (int64, error) {
	if dojangCode == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}
	count, err := s.repo.CountUnread(ctx, dojangCode)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}

func (s *service) MarkRead(ctx context.Context, dojangCode string, notificationID uuid.UUID) error {
	if dojangCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	result, err := s.repo.MarkRead(ctx, dojangCode, notificationID, s.now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	if !result.Found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, dojangCode string) (int64, error) {
	if dojangCode == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}

	count, err := s.repo.MarkAllRead(ctx, dojangCode, s.now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, dojangCode string, notificationID uuid.UUID) error {
	if dojangCode == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "dojang code required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	deleted, err := s.repo.Delete(ctx, dojangCode, notificationID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}
