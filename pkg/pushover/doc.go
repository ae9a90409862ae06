// Package pushover is a client for the Pushover notification HTTP API.
//
// Messages are assembled with a MessageBuilder, encoded into the multipart or
// URL-encoded forms the API expects, and the JSON replies are decoded into
// Status, Response, Receipt or Sound values. Client ties these together over an
// injectable HTTP transport.
package pushover
