package pushover

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// Field is one named text value of an encoded request.
type Field struct {
	Name  string
	Value string
}

// PushFields returns the text fields of a push request in wire order. Absent
// optional values are left out entirely rather than sent empty.
func PushFields(msg *Message) []Field {
	var fields []Field
	add := func(name string, v Optional[string]) {
		if s, ok := v.Get(); ok {
			fields = append(fields, Field{Name: name, Value: s})
		}
	}

	add("token", msg.APIToken())
	add("user", msg.UserID())
	add("message", msg.Message())
	add("title", msg.Title())
	add("url", msg.URL())
	add("url_title", msg.TitleForURL())
	add("device", msg.Device())
	if ts, ok := msg.Timestamp().Get(); ok {
		fields = append(fields, Field{Name: "timestamp", Value: strconv.FormatInt(ts, 10)})
	}
	add("sound", msg.Sound())

	if msg.Priority() != PriorityNormal {
		fields = append(fields, Field{Name: "priority", Value: msg.Priority().String()})
		if msg.Priority() == PriorityEmergency {
			fields = append(fields,
				Field{Name: "retry", Value: strconv.Itoa(msg.Retry())},
				Field{Name: "expire", Value: strconv.Itoa(msg.Expire())},
			)
			add("callback", msg.CallbackURL())
		}
	}

	if msg.HTML() {
		fields = append(fields, Field{Name: "html", Value: "1"})
	}
	if msg.Monospace() {
		fields = append(fields, Field{Name: "monospace", Value: "1"})
	}
	return fields
}

// VerificationFields returns the fields of a user/group validation request.
func VerificationFields(msg *Message) []Field {
	var fields []Field
	for _, f := range []struct {
		name string
		v    Optional[string]
	}{
		{"token", msg.APIToken()},
		{"user", msg.UserID()},
		{"device", msg.Device()},
	} {
		if s, ok := f.v.Get(); ok {
			fields = append(fields, Field{Name: f.name, Value: s})
		}
	}
	return fields
}

// EncodeMultipart writes fields, and img when not nil, as a multipart/form-data
// body. It returns the body and its Content-Type header value. Only reading the
// image can fail.
func EncodeMultipart(fields []Field, img *Image) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, escapeQuotes(f.Name)))
		h.Set("Content-Type", "text/plain; charset=UTF-8")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.WriteString(part, f.Value); err != nil {
			return nil, "", err
		}
	}

	if img != nil {
		if err := writeAttachment(w, img); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeAttachment(w *multipart.Writer, img *Image) error {
	src, err := img.Open()
	if err != nil {
		return fmt.Errorf("open attachment %s: %w", img.Name(), err)
	}
	defer src.Close()

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="attachment"; filename="%s"`, escapeQuotes(img.Name())))
	h.Set("Content-Type", img.ContentType())
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("read attachment %s: %w", img.Name(), err)
	}
	return nil
}

// CancelForm returns the URL-encoded body of an emergency cancel request.
func CancelForm(token string) url.Values {
	values := url.Values{}
	values.Set("token", token)
	return values
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
