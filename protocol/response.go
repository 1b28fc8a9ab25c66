// File: protocol/response.go
// Handshake response construction and serialization.
package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
)

// Response represents the HTTP reply to one upgrade attempt. It is valid for
// exactly one write; the pipeline discards it afterwards.
type Response struct {
	Status     int
	Reason     string // body text on rejection, empty on success
	Header     http.Header
	canUpgrade bool
}

// CanUpgrade reports whether the response completes the upgrade, i.e. the
// raw stream may be promoted into an engine connection after the write.
func (r *Response) CanUpgrade() bool {
	return r.canUpgrade
}

// Write serializes the status line, headers and terminating blank line to w.
// A rejection reason, when present, is written as a short plain-text body.
func (r *Response) Write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\n", r.Status, http.StatusText(r.Status)); err != nil {
		return err
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			if _, err := fmt.Fprintf(w, "%s: %s\r\n", k, v); err != nil {
				return err
			}
		}
	}
	if r.Reason != "" {
		if _, err := fmt.Fprintf(w, "Content-Type: text/plain\r\nContent-Length: %d\r\n\r\n%s", len(r.Reason), r.Reason); err != nil {
			return err
		}
		return nil
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}

// Reject builds a rejection response outside of policy negotiation, for
// requests that failed to parse at all.
func Reject(status int, reason string) *Response {
	return &Response{Status: status, Reason: reason, Header: make(http.Header)}
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key per
// RFC 6455 §4.2.2: base64(SHA-1(key + GUID)).
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
