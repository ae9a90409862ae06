package pushover_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bark-labs/pushover-relay/pkg/pushover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	query  string
	ctype  string
	form   map[string]string
	files  map[string]string
	raw    string
}

// fakeService stands in for the Pushover API.
type fakeService struct {
	mu       sync.Mutex
	requests []captured
	body     string
	headers  map[string]string
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := captured{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			ctype:  r.Header.Get("Content-Type"),
			form:   map[string]string{},
			files:  map[string]string{},
		}
		switch {
		case strings.HasPrefix(c.ctype, "multipart/form-data"):
			require.NoError(t, r.ParseMultipartForm(1<<20))
			for k, v := range r.MultipartForm.Value {
				c.form[k] = v[0]
			}
			for k, v := range r.MultipartForm.File {
				c.files[k] = v[0].Filename + "|" + v[0].Header.Get("Content-Type")
			}
		case r.Body != nil:
			raw, _ := io.ReadAll(r.Body)
			c.raw = string(raw)
		}
		f.mu.Lock()
		f.requests = append(f.requests, c)
		body := f.body
		for k, v := range f.headers {
			w.Header().Set(k, v)
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	})
}

func (f *fakeService) last(t *testing.T) captured {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeService) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, body string) (*pushover.Client, *fakeService, *httptest.Server) {
	t.Helper()
	svc := &fakeService{body: body}
	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)
	client, err := pushover.New(pushover.WithBaseURL(srv.URL), pushover.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client, svc, srv
}

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestPushMessage_NonDefaultPriority(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1,"request":"r1"}`)
	msg := "UTF-8 MSG (ue=ü, oe=ö, ae=ä)"

	st, err := client.PushMessage(context.Background(), pushover.BuilderWithAPIToken("TOKEN_CONTENT").
		UserID("USER_ID").
		Message(msg).
		Priority(pushover.PriorityHigh).
		Build())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Status)
	assert.Equal(t, "r1", st.Request)

	req := svc.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/1/messages.json", req.path)
	assert.Equal(t, "1", req.form["priority"])
	assert.Equal(t, msg, req.form["message"])
	assert.Equal(t, "TOKEN_CONTENT", req.form["token"])
	assert.Equal(t, "USER_ID", req.form["user"])
}

func TestPushMessageResponse_Emergency(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1,"receipt":"asdfghjkl"}`)
	svc.headers = map[string]string{pushover.HeaderAppRemaining: "7499"}

	resp, err := client.PushMessageResponse(context.Background(), pushover.BuilderWithAPIToken("").
		UserID("").
		Message("").
		Priority(pushover.PriorityEmergency).
		Retry(120).
		Expire(7200).
		Build())
	require.NoError(t, err)
	assert.Equal(t, "asdfghjkl", resp.Receipt)
	assert.Equal(t, 7499, resp.Remaining)

	req := svc.last(t)
	assert.Equal(t, "2", req.form["priority"])
	assert.Equal(t, "120", req.form["retry"])
	assert.Equal(t, "7200", req.form["expire"])
	assert.NotContains(t, req.form, "callback")
}

func TestPushMessage_WithImageAndFormatting(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1}`)

	_, err := client.PushMessage(context.Background(), pushover.BuilderWithAPIToken("").
		UserID("").
		Message("").
		Image(pushover.ImageFromBytes("test_image.jpg", "", []byte{0xff, 0xd8})).
		HTML(true).
		Monospace(true).
		Build())
	require.NoError(t, err)

	req := svc.last(t)
	assert.Equal(t, "test_image.jpg|image/jpeg", req.files["attachment"])
	assert.Equal(t, "1", req.form["html"])
	assert.Equal(t, "1", req.form["monospace"])
}

func TestPushMessage_RequiredOnlyOmitsOptionals(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1}`)

	_, err := client.PushMessage(context.Background(), pushover.BuilderWithAPIToken("t").UserID("u").Message("m").Build())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"token": "t", "user": "u", "message": "m"}, svc.last(t).form)
	assert.Empty(t, svc.last(t).files)
}

func TestPushMessage_TransportFailure(t *testing.T) {
	cause := errors.New("nope!")
	client, err := pushover.New(pushover.WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, cause
	})))
	require.NoError(t, err)

	st, err := client.PushMessage(context.Background(), pushover.BuilderWithAPIToken("").Build())
	assert.Nil(t, st)
	require.Error(t, err)
	var perr *pushover.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "push message", perr.Op)
	assert.ErrorIs(t, err, cause)
}

func TestPushMessage_MalformedBodyIsClientError(t *testing.T) {
	client, _, _ := newTestClient(t, `{`)

	resp, err := client.PushMessageResponse(context.Background(), pushover.BuilderWithAPIToken("").Build())
	assert.Nil(t, resp)
	var perr *pushover.Error
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, pushover.ErrMalformedResponse)
}

func TestPushMessage_UnreadableImageIsClientError(t *testing.T) {
	calls := 0
	client, err := pushover.New(pushover.WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("unexpected")
	})))
	require.NoError(t, err)

	_, err = client.PushMessage(context.Background(), pushover.BuilderWithAPIToken("").
		Image(pushover.ImageFromFile(t.TempDir()+"/missing.jpg")).
		Build())
	var perr *pushover.Error
	require.ErrorAs(t, err, &perr)
	assert.Zero(t, calls)
}

func TestPushMessage_ServiceRejectionIsNotAnError(t *testing.T) {
	svc := &fakeService{body: `{"status":0,"errors":["application token is invalid"],"request":"r9"}`}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, svc.body)
	}))
	defer srv.Close()
	client, err := pushover.New(pushover.WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := client.PushMessageResponse(context.Background(), pushover.BuilderWithAPIToken("bad").Build())
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Status)
	assert.Equal(t, []string{"application token is invalid"}, resp.Errors)
}

func TestRequestVerification(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1,"devices":["testPad"]}`)

	resp, err := client.RequestVerification(context.Background(), pushover.BuilderWithAPIToken("tok").
		UserID("bnmUaSdfqwER").
		Device("testPad").
		Message("not sent").
		Build())
	require.NoError(t, err)
	assert.Equal(t, []string{"testPad"}, resp.Devices)

	req := svc.last(t)
	assert.Equal(t, "/1/users/validate.json", req.path)
	assert.Equal(t, map[string]string{"token": "tok", "user": "bnmUaSdfqwER", "device": "testPad"}, req.form)
}

func TestRequestEmergencyReceipt(t *testing.T) {
	client, svc, srv := newTestClient(t, `{"status":1,"acknowledged":1,"acknowledged_by":"u1"}`)

	var seen string
	base := srv.Client()
	client, err := pushover.New(pushover.WithBaseURL(srv.URL), pushover.WithHTTPClient(doerFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.URL.String()
		return base.Do(r)
	})))
	require.NoError(t, err)

	rcpt, err := client.RequestEmergencyReceipt(context.Background(), "qwerasdfzxcv", "atestdevice")
	require.NoError(t, err)
	assert.True(t, rcpt.IsAcknowledged())
	assert.Equal(t, "u1", rcpt.AcknowledgedBy)

	assert.Equal(t, srv.URL+"/1/receipts/atestdevice.json?token=qwerasdfzxcv", seen)
	assert.Equal(t, http.MethodGet, svc.last(t).method)
}

func TestCancelEmergencyMessage(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"status":1,"request":"c1"}`)

	resp, err := client.CancelEmergencyMessage(context.Background(), "qwerasdfzxcv", "atestdevice")
	require.NoError(t, err)
	assert.Equal(t, "c1", resp.Request)

	req := svc.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/1/receipts/atestdevice/cancel.json", req.path)
	assert.Equal(t, "application/x-www-form-urlencoded", req.ctype)
	assert.Contains(t, req.raw, "token=qwerasdfzxcv")
}

func TestSounds_CachedAfterFirstSuccess(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"sounds":{"bike":"Bike"},"status":1}`)

	sounds, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pushover.Sound{{ID: "bike", Name: "Bike"}}, sounds)
	assert.Equal(t, "/1/sounds.json", svc.last(t).path)

	sounds, err = client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Len(t, sounds, 1)
	assert.Equal(t, 1, svc.count())

	client.ResetSounds()
	_, err = client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, svc.count())
}

func TestSounds_CallersGetIndependentCopies(t *testing.T) {
	client, _, _ := newTestClient(t, `{"sounds":{"bike":"Bike","siren":"Siren"}}`)

	first, err := client.Sounds(context.Background())
	require.NoError(t, err)
	first[0].Name = "changed"
	first[1] = pushover.Sound{}

	second, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pushover.Sound{{ID: "bike", Name: "Bike"}, {ID: "siren", Name: "Siren"}}, second)

	second[0].Name = "changed again"
	third, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bike", third[0].Name)
}

func TestRefreshSounds_BypassesWarmCache(t *testing.T) {
	calls := 0
	up := true
	client, err := pushover.New(pushover.WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if !up {
			return nil, errors.New("network unreachable")
		}
		return jsonResponse(`{"sounds":{"bike":"Bike"}}`), nil
	})))
	require.NoError(t, err)

	_, err = client.Sounds(context.Background())
	require.NoError(t, err)
	_, err = client.RefreshSounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	up = false
	_, err = client.RefreshSounds(context.Background())
	assert.ErrorAs(t, err, new(*pushover.Error))
	assert.Equal(t, 3, calls)

	sounds, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []pushover.Sound{{ID: "bike", Name: "Bike"}}, sounds)
	assert.Equal(t, 3, calls)
}

func TestSounds_FailureDoesNotPoisonCache(t *testing.T) {
	fail := true
	calls := 0
	client, err := pushover.New(pushover.WithHTTPClient(doerFunc(func(*http.Request) (*http.Response, error) {
		calls++
		if fail {
			return nil, errors.New("nope!")
		}
		return jsonResponse(`{"sounds":{"id":"name"}}`), nil
	})))
	require.NoError(t, err)

	_, err = client.Sounds(context.Background())
	var perr *pushover.Error
	require.ErrorAs(t, err, &perr)

	fail = false
	sounds, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Len(t, sounds, 1)

	_, err = client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestSounds_ConcurrentCallers(t *testing.T) {
	client, svc, _ := newTestClient(t, `{"sounds":{"id":"name"}}`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sounds, err := client.Sounds(context.Background())
			assert.NoError(t, err)
			assert.Len(t, sounds, 1)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, svc.count(), 1)
	before := svc.count()
	_, err := client.Sounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, svc.count())
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := pushover.New(pushover.WithBaseURL("api.pushover.net"))
	assert.Error(t, err)
	_, err = pushover.New(pushover.WithHTTPClient(nil))
	assert.Error(t, err)

	c, err := pushover.New()
	require.NoError(t, err)
	assert.Equal(t, pushover.DefaultBaseURL, c.BaseURL())
}
