package service_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bark-labs/pushover-relay/internal/storage/bolt"
	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/stretchr/testify/require"
)

// fakePusher records messages and answers from canned functions.
type fakePusher struct {
	mu       sync.Mutex
	pushed   []*pushover.Message
	verified []*pushover.Message
	receipts []string
	cancels  []string

	push    func(*pushover.Message) (*pushover.Response, error)
	verify  func(*pushover.Message) (*pushover.Response, error)
	receipt func(string) (*pushover.Receipt, error)
	cancel  func(string) (*pushover.Response, error)
}

var _ pushover.Pusher = (*fakePusher)(nil)

func (f *fakePusher) PushMessage(ctx context.Context, msg *pushover.Message) (*pushover.Status, error) {
	resp, err := f.PushMessageResponse(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &pushover.Status{Status: resp.Status, Request: resp.Request}, nil
}

func (f *fakePusher) PushMessageResponse(_ context.Context, msg *pushover.Message) (*pushover.Response, error) {
	f.mu.Lock()
	f.pushed = append(f.pushed, msg)
	f.mu.Unlock()
	if f.push == nil {
		return &pushover.Response{Status: 1, Request: "req"}, nil
	}
	return f.push(msg)
}

func (f *fakePusher) RequestVerification(_ context.Context, msg *pushover.Message) (*pushover.Response, error) {
	f.mu.Lock()
	f.verified = append(f.verified, msg)
	f.mu.Unlock()
	if f.verify == nil {
		return &pushover.Response{Status: 1}, nil
	}
	return f.verify(msg)
}

func (f *fakePusher) RequestEmergencyReceipt(_ context.Context, _, receipt string) (*pushover.Receipt, error) {
	f.mu.Lock()
	f.receipts = append(f.receipts, receipt)
	f.mu.Unlock()
	if f.receipt == nil {
		return &pushover.Receipt{Status: 1}, nil
	}
	return f.receipt(receipt)
}

func (f *fakePusher) CancelEmergencyMessage(_ context.Context, _, receipt string) (*pushover.Response, error) {
	f.mu.Lock()
	f.cancels = append(f.cancels, receipt)
	f.mu.Unlock()
	if f.cancel == nil {
		return &pushover.Response{Status: 1}, nil
	}
	return f.cancel(receipt)
}

func (f *fakePusher) Sounds(context.Context) ([]pushover.Sound, error) {
	return []pushover.Sound{{ID: "pushover", Name: "Pushover (default)"}}, nil
}

func (f *fakePusher) RefreshSounds(ctx context.Context) ([]pushover.Sound, error) {
	return f.Sounds(ctx)
}

func (f *fakePusher) ResetSounds() {}

func (f *fakePusher) pushedTo() map[string]*pushover.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*pushover.Message, len(f.pushed))
	for _, m := range f.pushed {
		out[m.UserID().OrElse("")] = m
	}
	return out
}

func openStore(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.New(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
