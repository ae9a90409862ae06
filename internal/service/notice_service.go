package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/storage"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NoticeDefaults fills fields a NoticeRequest leaves empty.
type NoticeDefaults struct {
	APIToken    string
	Sound       string
	Retry       int
	Expire      int
	CallbackURL string
}

// NoticeService turns notices into Pushover messages and fans them out.
type NoticeService struct {
	store    storage.Store
	pushover pushover.Pusher
	defaults NoticeDefaults
	log      zerolog.Logger
}

// NewNoticeService builds NoticeService.
func NewNoticeService(store storage.Store, pusher pushover.Pusher, defaults NoticeDefaults, log zerolog.Logger) *NoticeService {
	return &NoticeService{store: store, pushover: pusher, defaults: defaults, log: log}
}

// Broadcast pushes req to the listed recipients, or to every active one when
// none are listed. Each attempt is logged; emergency receipts are tracked.
func (s *NoticeService) Broadcast(ctx context.Context, req model.NoticeRequest) (model.NoticeSummary, []model.NoticeResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return model.NoticeSummary{}, nil, fmt.Errorf("message is required")
	}
	if s.pushover == nil {
		return model.NoticeSummary{}, nil, fmt.Errorf("pushover client not configured")
	}
	priority, err := pushover.ParsePriority(req.Priority)
	if err != nil {
		return model.NoticeSummary{}, nil, err
	}

	targets, lookupFailures := s.pickTargets(ctx, req.UserKeys)
	if len(targets) == 0 {
		return model.NoticeSummary{}, lookupFailures, fmt.Errorf("no target recipients resolved")
	}

	batchID := uuid.NewString()
	var (
		results    = append(make([]model.NoticeResult, 0, len(targets)+len(lookupFailures)), lookupFailures...)
		mu         sync.Mutex
		wg         sync.WaitGroup
		successNum int
		remaining  = -1
	)

	wg.Add(len(targets))
	for _, recipient := range targets {
		go func(recipient *model.Recipient) {
			defer wg.Done()
			msg := s.buildMessage(req, priority, recipient)
			result := model.NoticeResult{UserKey: recipient.UserKey}

			resp, pushErr := s.pushover.PushMessageResponse(ctx, msg)
			switch {
			case pushErr != nil:
				result.Status = model.NoticeStatusFailed
				result.Message = pushErr.Error()
			case resp.OK():
				result.Status = model.NoticeStatusSuccess
			default:
				result.Status = model.NoticeStatusFailed
				result.Message = strings.Join(resp.Errors, "; ")
			}
			if resp != nil {
				result.RequestID = resp.Request
				result.Receipt = resp.Receipt
				result.Errors = resp.Errors
			}

			s.appendLog(ctx, batchID, recipient, req, priority, result)
			if result.Receipt != "" {
				s.trackReceipt(ctx, batchID, recipient, req, result.Receipt)
			}

			mu.Lock()
			defer mu.Unlock()
			if result.Status == model.NoticeStatusSuccess {
				successNum++
			}
			if resp != nil && resp.Remaining > 0 && (remaining < 0 || resp.Remaining < remaining) {
				remaining = resp.Remaining
			}
			results = append(results, result)
		}(recipient)
	}
	wg.Wait()

	s.log.Info().
		Str("batch", batchID).
		Int("sent", len(targets)).
		Int("success", successNum).
		Msg("notice broadcast")
	return model.NoticeSummary{
		BatchID:    batchID,
		SendNum:    len(targets),
		SuccessNum: successNum,
		Remaining:  max(remaining, 0),
	}, results, nil
}

func (s *NoticeService) buildMessage(req model.NoticeRequest, priority pushover.Priority, recipient *model.Recipient) *pushover.Message {
	b := pushover.BuilderWithAPIToken(s.defaults.APIToken).
		UserID(recipient.UserKey).
		Message(req.Message).
		Priority(priority).
		HTML(req.HTML).
		Monospace(req.Monospace)

	if v := strings.TrimSpace(req.Title); v != "" {
		b.Title(v)
	}
	if v := strings.TrimSpace(req.URL); v != "" {
		b.URL(v)
	}
	if v := strings.TrimSpace(req.URLTitle); v != "" {
		b.TitleForURL(v)
	}
	if recipient.Device != "" {
		b.Device(recipient.Device)
	}
	if sound := firstNonEmpty(req.Sound, recipient.Sound, s.defaults.Sound); sound != "" {
		b.Sound(sound)
	}
	if req.Timestamp > 0 {
		b.Timestamp(req.Timestamp)
	}
	if priority == pushover.PriorityEmergency {
		b.Retry(firstPositive(req.Retry, s.defaults.Retry)).
			Expire(firstPositive(req.Expire, s.defaults.Expire))
		if cb := firstNonEmpty(req.Callback, s.defaults.CallbackURL); cb != "" {
			b.CallbackURL(cb)
		}
	}
	return b.Build()
}

func (s *NoticeService) pickTargets(ctx context.Context, userKeys []string) ([]*model.Recipient, []model.NoticeResult) {
	if len(userKeys) == 0 {
		list, err := s.store.ListActiveRecipients(ctx)
		if err != nil {
			return nil, []model.NoticeResult{{
				Status:  model.NoticeStatusFailed,
				Message: fmt.Sprintf("list recipients: %v", err),
			}}
		}
		return list, nil
	}

	var (
		recipients []*model.Recipient
		failures   []model.NoticeResult
	)
	for _, key := range userKeys {
		recipient, err := s.store.GetRecipient(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			// Unknown keys are still pushed to; the service decides whether they exist.
			recipient, err = &model.Recipient{UserKey: key}, nil
		}
		if err != nil {
			failures = append(failures, model.NoticeResult{
				UserKey: key,
				Status:  model.NoticeStatusFailed,
				Message: err.Error(),
			})
			continue
		}
		recipients = append(recipients, recipient)
	}
	return recipients, failures
}

func (s *NoticeService) appendLog(ctx context.Context, batchID string, recipient *model.Recipient, req model.NoticeRequest, priority pushover.Priority, result model.NoticeResult) {
	entry := &model.NoticeLog{
		BatchID:   batchID,
		UserKey:   recipient.UserKey,
		Title:     req.Title,
		Message:   req.Message,
		Priority:  int(priority),
		RequestID: result.RequestID,
		Receipt:   result.Receipt,
		Result:    result.Message,
		Status:    result.Status,
	}
	if err := s.store.AppendNoticeLog(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("batch", batchID).Msg("append notice log failed")
	}
}

func (s *NoticeService) trackReceipt(ctx context.Context, batchID string, recipient *model.Recipient, req model.NoticeRequest, receipt string) {
	entry := &model.TrackedReceipt{
		Receipt: receipt,
		UserKey: recipient.UserKey,
		BatchID: batchID,
		Title:   req.Title,
	}
	if err := s.store.SaveReceipt(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("receipt", receipt).Msg("track receipt failed")
	}
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
