package storage

import (
	"context"

	"github.com/bark-labs/pushover-relay/internal/model"
)

// Store abstracts relay persistence.
type Store interface {
	UpsertRecipient(ctx context.Context, recipient *model.Recipient) error
	GetRecipient(ctx context.Context, userKey string) (*model.Recipient, error)
	ListRecipients(ctx context.Context) ([]*model.Recipient, error)
	ListActiveRecipients(ctx context.Context) ([]*model.Recipient, error)
	DeleteRecipient(ctx context.Context, userKey string) error
	AppendNoticeLog(ctx context.Context, log *model.NoticeLog) error
	ListNoticeLogs(ctx context.Context) ([]*model.NoticeLog, error)
	SaveReceipt(ctx context.Context, receipt *model.TrackedReceipt) error
	GetReceipt(ctx context.Context, receipt string) (*model.TrackedReceipt, error)
	ListReceipts(ctx context.Context) ([]*model.TrackedReceipt, error)
	Close() error
}
