package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bark-labs/pushover-relay/internal/model"
	"github.com/bark-labs/pushover-relay/internal/storage"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/rs/zerolog"
)

// RecipientService manages the user and group keys the relay delivers to.
type RecipientService struct {
	store    storage.Store
	pushover pushover.Pusher
	apiToken string
	log      zerolog.Logger
}

// RecipientRequest describes an upsert payload.
type RecipientRequest struct {
	UserKey string `json:"userKey"`
	Name    string `json:"name"`
	Device  string `json:"device"`
	Sound   string `json:"sound"`
	Status  string `json:"status"`
	// Verify asks the service to validate the key before it is stored.
	Verify bool `json:"verify"`
}

// NewRecipientService constructs RecipientService.
func NewRecipientService(store storage.Store, pusher pushover.Pusher, apiToken string, log zerolog.Logger) *RecipientService {
	return &RecipientService{store: store, pushover: pusher, apiToken: apiToken, log: log}
}

// Upsert stores or updates a recipient.
func (s *RecipientService) Upsert(ctx context.Context, req RecipientRequest) (*model.Recipient, error) {
	key := strings.TrimSpace(req.UserKey)
	if key == "" {
		return nil, fmt.Errorf("userKey is required")
	}

	recipient, err := s.store.GetRecipient(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		recipient = &model.Recipient{UserKey: key}
	}
	recipient.Name = firstNonEmpty(req.Name, recipient.Name, key)
	recipient.Device = strings.TrimSpace(req.Device)
	recipient.Sound = strings.TrimSpace(req.Sound)
	recipient.Status = firstNonEmpty(strings.ToUpper(strings.TrimSpace(req.Status)), model.RecipientStatusActive)

	if req.Verify {
		if err := s.verify(ctx, recipient); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpsertRecipient(ctx, recipient); err != nil {
		return nil, err
	}
	return recipient, nil
}

// Verify asks the service whether the recipient's key (and device) exist and
// stores the outcome.
func (s *RecipientService) Verify(ctx context.Context, userKey string) (*model.Recipient, error) {
	recipient, err := s.store.GetRecipient(ctx, userKey)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, recipient); err != nil {
		return nil, err
	}
	if err := s.store.UpsertRecipient(ctx, recipient); err != nil {
		return nil, err
	}
	return recipient, nil
}

func (s *RecipientService) verify(ctx context.Context, recipient *model.Recipient) error {
	if s.pushover == nil {
		return fmt.Errorf("pushover client not configured")
	}
	b := pushover.BuilderWithAPIToken(s.apiToken).UserID(recipient.UserKey)
	if recipient.Device != "" {
		b.Device(recipient.Device)
	}
	resp, err := s.pushover.RequestVerification(ctx, b.Build())
	if err != nil {
		return err
	}
	recipient.Verified = resp.OK()
	recipient.Devices = resp.Devices
	recipient.VerifyNote = strings.Join(resp.Errors, "; ")
	recipient.VerifiedAt = time.Now().UTC()
	s.log.Info().
		Str("user", maskValue(recipient.UserKey)).
		Bool("verified", recipient.Verified).
		Int("devices", len(resp.Devices)).
		Msg("recipient verified")
	return nil
}

// List returns all recipients.
func (s *RecipientService) List(ctx context.Context) ([]*model.Recipient, error) {
	return s.store.ListRecipients(ctx)
}

// ListViews returns recipients with masked keys.
func (s *RecipientService) ListViews(ctx context.Context) ([]*model.RecipientView, error) {
	recipients, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*model.RecipientView, 0, len(recipients))
	for _, r := range recipients {
		views = append(views, toView(r))
	}
	return views, nil
}

// Get returns a recipient by user key.
func (s *RecipientService) Get(ctx context.Context, userKey string) (*model.Recipient, error) {
	return s.store.GetRecipient(ctx, userKey)
}

// UpdateStatus toggles whether a recipient receives broadcasts.
func (s *RecipientService) UpdateStatus(ctx context.Context, userKey, status string) (*model.Recipient, error) {
	recipient, err := s.store.GetRecipient(ctx, userKey)
	if err != nil {
		return nil, err
	}
	recipient.Status = firstNonEmpty(strings.ToUpper(strings.TrimSpace(status)), model.RecipientStatusActive)
	if err := s.store.UpsertRecipient(ctx, recipient); err != nil {
		return nil, err
	}
	return recipient, nil
}

// Delete removes a recipient.
func (s *RecipientService) Delete(ctx context.Context, userKey string) error {
	return s.store.DeleteRecipient(ctx, userKey)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func toView(r *model.Recipient) *model.RecipientView {
	if r == nil {
		return nil
	}
	return &model.RecipientView{
		UserKey:  maskValue(r.UserKey),
		Name:     r.Name,
		Device:   r.Device,
		Status:   r.Status,
		Verified: r.Verified,
		Devices:  r.Devices,
	}
}

func maskValue(value string) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if len(runes) <= 4 {
		return value
	}
	return string(runes[:4]) + strings.Repeat("*", len(runes)-4)
}
