package pushover

import (
	"bytes"
	"io"
	"mime"
	"os"
	"path/filepath"
)

// Message is one outbound notification. Build it with MessageBuilder; the
// accessors never mutate it.
type Message struct {
	apiToken    Optional[string]
	userID      Optional[string]
	message     Optional[string]
	device      Optional[string]
	title       Optional[string]
	url         Optional[string]
	titleForURL Optional[string]
	priority    Priority
	timestamp   Optional[int64]
	sound       Optional[string]
	retry       int
	expire      int
	callbackURL Optional[string]
	image       *Image
	html        bool
	monospace   bool
}

// APIToken is the application token the message is sent with.
func (m *Message) APIToken() Optional[string] { return m.apiToken }

// UserID is the user or group key of the recipient.
func (m *Message) UserID() Optional[string] { return m.userID }

// Message is the notification body.
func (m *Message) Message() Optional[string] { return m.message }

// Device limits delivery to one of the user's devices.
func (m *Message) Device() Optional[string] { return m.device }

// Title is shown above the body.
func (m *Message) Title() Optional[string] { return m.title }

// URL is a supplementary link.
func (m *Message) URL() Optional[string] { return m.url }

// TitleForURL is the label of the supplementary link.
func (m *Message) TitleForURL() Optional[string] { return m.titleForURL }

// Priority defaults to PriorityNormal.
func (m *Message) Priority() Priority { return m.priority }

// Timestamp is the unix time shown instead of the receipt time.
func (m *Message) Timestamp() Optional[int64] { return m.timestamp }

// Sound overrides the user's default sound.
func (m *Message) Sound() Optional[string] { return m.sound }

// CallbackURL is called by the service when an emergency message is acknowledged.
func (m *Message) CallbackURL() Optional[string] { return m.callbackURL }

// Image is the attachment, or nil.
func (m *Message) Image() *Image { return m.image }

// HTML reports whether the body is sent as HTML.
func (m *Message) HTML() bool { return m.html }

// Monospace reports whether the body is rendered in a monospace font.
func (m *Message) Monospace() bool { return m.monospace }

// Retry is the emergency re-delivery interval in seconds. The service requires
// at least 30; nothing is checked locally.
func (m *Message) Retry() int { return m.retry }

// Expire is how long, in seconds, an emergency message keeps being retried.
// The service caps it at 86400.
func (m *Message) Expire() int { return m.expire }

// MessageBuilder assembles a Message. It performs no validation.
type MessageBuilder struct {
	msg Message
}

// NewMessageBuilder returns an empty builder with priority normal.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

// BuilderWithAPIToken returns a builder with the application token already set.
func BuilderWithAPIToken(token string) *MessageBuilder {
	return NewMessageBuilder().APIToken(token)
}

// Build returns the assembled message.
func (b *MessageBuilder) Build() *Message {
	msg := b.msg
	return &msg
}

// APIToken sets the application API token.
func (b *MessageBuilder) APIToken(token string) *MessageBuilder {
	b.msg.apiToken = Some(token)
	return b
}

// UserID sets the user or group key of the recipient.
func (b *MessageBuilder) UserID(userID string) *MessageBuilder {
	b.msg.userID = Some(userID)
	return b
}

// Message sets the message body.
func (b *MessageBuilder) Message(message string) *MessageBuilder {
	b.msg.message = Some(message)
	return b
}

// Device targets a single device of the user instead of all of them.
func (b *MessageBuilder) Device(device string) *MessageBuilder {
	b.msg.device = Some(device)
	return b
}

// Title sets the title; the service uses the application name otherwise.
func (b *MessageBuilder) Title(title string) *MessageBuilder {
	b.msg.title = Some(title)
	return b
}

// URL sets a supplementary URL shown with the message.
func (b *MessageBuilder) URL(url string) *MessageBuilder {
	b.msg.url = Some(url)
	return b
}

// TitleForURL sets the label of the supplementary URL.
func (b *MessageBuilder) TitleForURL(title string) *MessageBuilder {
	b.msg.titleForURL = Some(title)
	return b
}

// Priority sets the priority; only non-normal priorities are sent.
func (b *MessageBuilder) Priority(p Priority) *MessageBuilder {
	b.msg.priority = p
	return b
}

// Timestamp sets the unix time shown on the message instead of receipt time.
func (b *MessageBuilder) Timestamp(unix int64) *MessageBuilder {
	b.msg.timestamp = Some(unix)
	return b
}

// Sound overrides the user's default notification sound.
func (b *MessageBuilder) Sound(sound string) *MessageBuilder {
	b.msg.sound = Some(sound)
	return b
}

// Retry sets the emergency re-delivery interval in seconds.
func (b *MessageBuilder) Retry(seconds int) *MessageBuilder {
	b.msg.retry = seconds
	return b
}

// Expire sets how long an emergency message is retried, in seconds.
func (b *MessageBuilder) Expire(seconds int) *MessageBuilder {
	b.msg.expire = seconds
	return b
}

// CallbackURL sets the URL the service calls when an emergency message is acknowledged.
func (b *MessageBuilder) CallbackURL(url string) *MessageBuilder {
	b.msg.callbackURL = Some(url)
	return b
}

// Image attaches an image. A nil image removes a previous attachment.
func (b *MessageBuilder) Image(img *Image) *MessageBuilder {
	b.msg.image = img
	return b
}

// HTML marks the body as HTML.
func (b *MessageBuilder) HTML(enabled bool) *MessageBuilder {
	b.msg.html = enabled
	return b
}

// Monospace renders the body in a monospace font.
func (b *MessageBuilder) Monospace(enabled bool) *MessageBuilder {
	b.msg.monospace = enabled
	return b
}

// Image is an attachment sent as the "attachment" multipart part.
type Image struct {
	name        string
	contentType string
	open        func() (io.ReadCloser, error)
}

// ImageFromFile references a file on disk. The content type is inferred from
// the extension and the bytes are read when the message is encoded.
func ImageFromFile(path string) *Image {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Image{
		name:        filepath.Base(path),
		contentType: ct,
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// ImageFromBytes wraps in-memory image data.
func ImageFromBytes(name, contentType string, data []byte) *Image {
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Image{
		name:        name,
		contentType: contentType,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Name returns the filename sent with the attachment.
func (i *Image) Name() string { return i.name }

// ContentType returns the MIME type sent with the attachment.
func (i *Image) ContentType() string { return i.contentType }

// Open returns a reader over the image bytes.
func (i *Image) Open() (io.ReadCloser, error) { return i.open() }
