package pushover

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Quota headers sent by the service on message, validation and cancel calls.
const (
	HeaderAppLimit     = "X-Limit-App-Limit"
	HeaderAppRemaining = "X-Limit-App-Remaining"
	HeaderAppReset     = "X-Limit-App-Reset"
)

// Status is the minimal result of a push: 1 means accepted.
type Status struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// Response is the general result of push, validation and cancel calls.
// Limit, Remaining and Reset (unix seconds) come from the quota headers, not
// the body.
type Response struct {
	Status    int      `json:"status"`
	Request   string   `json:"request"`
	Receipt   string   `json:"receipt,omitempty"`
	Devices   []string `json:"devices,omitempty"`
	Errors    []string `json:"errors,omitempty"`
	Limit     int      `json:"-"`
	Remaining int      `json:"-"`
	Reset     int64    `json:"-"`
}

// OK reports whether the service accepted the request.
func (r *Response) OK() bool { return r.Status == 1 }

// Receipt tracks the lifecycle of one emergency-priority message.
type Receipt struct {
	Status               int      `json:"status"`
	Request              string   `json:"request"`
	Acknowledged         int      `json:"acknowledged"`
	AcknowledgedAt       int64    `json:"acknowledged_at"`
	AcknowledgedBy       string   `json:"acknowledged_by"`
	AcknowledgedByDevice string   `json:"acknowledged_by_device"`
	LastDeliveredAt      int64    `json:"last_delivered_at"`
	Expired              int      `json:"expired"`
	ExpiresAt            int64    `json:"expires_at"`
	CalledBack           int      `json:"called_back"`
	CalledBackAt         int64    `json:"called_back_at"`
	Errors               []string `json:"errors,omitempty"`
}

// IsAcknowledged reports whether a user acknowledged the message.
func (r *Receipt) IsAcknowledged() bool { return r.Acknowledged == 1 }

// IsExpired reports whether the service stopped retrying without an acknowledgement.
func (r *Receipt) IsExpired() bool { return r.Expired == 1 }

// IsCalledBack reports whether the callback URL has been requested.
func (r *Receipt) IsCalledBack() bool { return r.CalledBack == 1 }

// Sound is one notification sound offered by the service.
type Sound struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DecodeStatus reads a Status from resp.
func DecodeStatus(resp *http.Response) (*Status, error) {
	var st Status
	if err := decodeBody(resp, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// DecodeResponse reads a Response from resp, including the quota headers.
func DecodeResponse(resp *http.Response) (*Response, error) {
	var r Response
	if err := decodeBody(resp, &r); err != nil {
		return nil, err
	}
	var err error
	if r.Limit, err = headerInt(resp.Header, HeaderAppLimit); err != nil {
		return nil, err
	}
	if r.Remaining, err = headerInt(resp.Header, HeaderAppRemaining); err != nil {
		return nil, err
	}
	reset, err := headerInt(resp.Header, HeaderAppReset)
	if err != nil {
		return nil, err
	}
	r.Reset = int64(reset)
	return &r, nil
}

// DecodeReceipt reads a Receipt from resp.
func DecodeReceipt(resp *http.Response) (*Receipt, error) {
	var r Receipt
	if err := decodeBody(resp, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DecodeSounds reads the sound list from resp, sorted by id. A body without a
// "sounds" key yields an empty, non-nil slice.
func DecodeSounds(resp *http.Response) ([]Sound, error) {
	var payload struct {
		Sounds map[string]string `json:"sounds"`
	}
	if err := decodeBody(resp, &payload); err != nil {
		return nil, err
	}
	sounds := make([]Sound, 0, len(payload.Sounds))
	for id, name := range payload.Sounds {
		sounds = append(sounds, Sound{ID: id, Name: name})
	}
	sort.Slice(sounds, func(i, j int) bool {
		return sounds[i].ID < sounds[j].ID
	})
	return sounds, nil
}

func decodeBody(resp *http.Response, dst any) error {
	if resp == nil {
		return malformed("nil response")
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return malformed("response has no body")
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return malformed("read body: %v", err)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return malformed("body is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return malformed("decode body: %v", err)
	}
	return nil
}

func headerInt(h http.Header, name string) (int, error) {
	raw := strings.TrimSpace(h.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed("header %s: %q is not an integer", name, raw)
	}
	return n, nil
}
