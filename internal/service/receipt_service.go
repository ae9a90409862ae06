package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/storage"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/rs/zerolog"
)

// ReceiptService follows emergency messages after they were accepted.
type ReceiptService struct {
	store    storage.Store
	pushover pushover.Pusher
	apiToken string
	log      zerolog.Logger
	now      func() time.Time
}

// NewReceiptService builds ReceiptService.
func NewReceiptService(store storage.Store, pusher pushover.Pusher, apiToken string, log zerolog.Logger) *ReceiptService {
	return &ReceiptService{store: store, pushover: pusher, apiToken: apiToken, log: log, now: time.Now}
}

// Refresh polls the service for receipt and stores the snapshot. Receipts the
// relay did not send are tracked from the first accepted refresh on; a
// rejected lookup of an untracked receipt is an error and stores nothing. A
// tracked receipt the service rejects is marked settled so polling stops.
func (s *ReceiptService) Refresh(ctx context.Context, receipt string) (*model.TrackedReceipt, error) {
	if strings.TrimSpace(receipt) == "" {
		return nil, fmt.Errorf("receipt is required")
	}
	tracked, known, err := s.lookup(ctx, receipt)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.pushover.RequestEmergencyReceipt(ctx, s.apiToken, receipt)
	if err != nil {
		return nil, err
	}
	if rcpt.Status != 1 {
		reason := firstNonEmpty(strings.Join(rcpt.Errors, "; "), "rejected by service")
		if !known {
			return nil, fmt.Errorf("receipt %s: %s", receipt, reason)
		}
		tracked.LastError = reason
		tracked.Rejected = true
		s.log.Warn().Str("receipt", receipt).Str("reason", reason).Msg("receipt rejected, tracking stopped")
	} else {
		tracked.LastError = ""
		tracked.Acknowledged = rcpt.IsAcknowledged()
		tracked.AcknowledgedBy = rcpt.AcknowledgedBy
		tracked.AcknowledgedAt = rcpt.AcknowledgedAt
		tracked.LastDeliveredAt = rcpt.LastDeliveredAt
		tracked.ExpiresAt = rcpt.ExpiresAt
		tracked.Expired = rcpt.IsExpired() || (rcpt.ExpiresAt > 0 && s.now().Unix() >= rcpt.ExpiresAt)
		tracked.CalledBack = rcpt.IsCalledBack()
	}
	if err := s.store.SaveReceipt(ctx, tracked); err != nil {
		return nil, err
	}
	return tracked, nil
}

// Cancel stops the retries of an emergency message. A rejection by the
// service is returned as an error and leaves the record untouched.
func (s *ReceiptService) Cancel(ctx context.Context, receipt string) (*model.TrackedReceipt, error) {
	if strings.TrimSpace(receipt) == "" {
		return nil, fmt.Errorf("receipt is required")
	}
	tracked, _, err := s.lookup(ctx, receipt)
	if err != nil {
		return nil, err
	}
	resp, err := s.pushover.CancelEmergencyMessage(ctx, s.apiToken, receipt)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("cancel rejected: %s", strings.Join(resp.Errors, "; "))
	}
	tracked.Cancelled = true
	if err := s.store.SaveReceipt(ctx, tracked); err != nil {
		return nil, err
	}
	s.log.Info().Str("receipt", receipt).Msg("emergency message cancelled")
	return tracked, nil
}

// RefreshPending refreshes every receipt the service is still retrying and
// returns how many were refreshed. Individual failures are logged and skipped.
func (s *ReceiptService) RefreshPending(ctx context.Context) (int, error) {
	all, err := s.store.ListReceipts(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, r := range all {
		if !r.Pending() {
			continue
		}
		if _, err := s.Refresh(ctx, r.Receipt); err != nil {
			s.log.Warn().Err(err).Str("receipt", r.Receipt).Msg("refresh receipt failed")
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// List returns tracked receipts, newest first.
func (s *ReceiptService) List(ctx context.Context) ([]*model.TrackedReceipt, error) {
	all, err := s.store.ListReceipts(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	return all, nil
}

// lookup returns the stored record for receipt, or a fresh one with known
// set to false.
func (s *ReceiptService) lookup(ctx context.Context, receipt string) (*model.TrackedReceipt, bool, error) {
	if s.pushover == nil {
		return nil, false, fmt.Errorf("pushover client not configured")
	}
	tracked, err := s.store.GetReceipt(ctx, receipt)
	if errors.Is(err, storage.ErrNotFound) {
		return &model.TrackedReceipt{Receipt: receipt}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return tracked, true, nil
}
