// File: protocol/request.go
// Package protocol implements the HTTP to WebSocket upgrade handshake: request
// accumulation and parsing, header validation, Sec-WebSocket-Accept
// derivation and response serialization. Framing after the upgrade is out of
// scope here; it belongs to the engine implementations.
package protocol

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"strings"
)

const (
	// WebSocketGUID is the fixed GUID, per RFC 6455, used in handshake
	// accept-key computations.
	WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// MaxHandshakeBytes caps the accumulated request line plus headers to
	// bound memory against slow or malicious clients.
	MaxHandshakeBytes = 8192

	HeaderConnection          = "Connection"
	HeaderUpgrade             = "Upgrade"
	HeaderSecWebSocketKey     = "Sec-WebSocket-Key"
	HeaderSecWebSocketVersion = "Sec-WebSocket-Version"
	HeaderSecWebSocketAccept  = "Sec-WebSocket-Accept"
	HeaderSecWebSocketProto   = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketExt     = "Sec-WebSocket-Extensions"
	HeaderOrigin              = "Origin"
)

var (
	ErrRequestTooLarge   = fmt.Errorf("handshake request exceeds %d bytes", MaxHandshakeBytes)
	ErrMalformedRequest  = fmt.Errorf("malformed handshake request")
	ErrIncompleteRequest = fmt.Errorf("incomplete handshake request")
)

// Request is one parsed upgrade request: a transient value object created
// per incoming raw connection and consumed once by Policy.Negotiate.
type Request struct {
	Method     string
	Resource   string
	Header     http.Header
	Key        string
	Version    string
	Origin     string
	Protocols  []string
	Extensions []string
}

// ReadRequest accumulates bytes from br until a syntactically complete HTTP
// request (request line plus headers, terminated by the blank line) has been
// observed, then parses it. Accumulation is capped at maxBytes (0 means
// MaxHandshakeBytes). Reading through the bufio.Reader preserves any frame
// bytes the client pipelined after the handshake.
func ReadRequest(br *bufio.Reader, maxBytes int) (*Request, error) {
	if maxBytes <= 0 {
		maxBytes = MaxHandshakeBytes
	}
	var raw bytes.Buffer
	for {
		b, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncompleteRequest, err)
		}
		raw.WriteByte(b)
		if raw.Len() > maxBytes {
			return nil, ErrRequestTooLarge
		}
		if requestComplete(raw.Bytes()) {
			break
		}
	}
	return parseRequest(raw.Bytes())
}

// requestComplete reports whether buf ends in the blank line terminating an
// HTTP request head.
func requestComplete(buf []byte) bool {
	return bytes.HasSuffix(buf, []byte("\r\n\r\n")) || bytes.HasSuffix(buf, []byte("\n\n"))
}

func parseRequest(raw []byte) (*Request, error) {
	httpReq, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	req := &Request{
		Method:     httpReq.Method,
		Resource:   httpReq.RequestURI,
		Header:     httpReq.Header,
		Key:        strings.TrimSpace(httpReq.Header.Get(HeaderSecWebSocketKey)),
		Version:    strings.TrimSpace(httpReq.Header.Get(HeaderSecWebSocketVersion)),
		Origin:     httpReq.Header.Get(HeaderOrigin),
		Protocols:  splitTokenList(httpReq.Header[http.CanonicalHeaderKey(HeaderSecWebSocketProto)]),
		Extensions: splitTokenList(httpReq.Header[http.CanonicalHeaderKey(HeaderSecWebSocketExt)]),
	}
	return req, nil
}

// HasUpgradeHeaders reports whether the Connection and Upgrade headers carry
// the tokens required for a WebSocket upgrade, case-insensitively.
func (r *Request) HasUpgradeHeaders() bool {
	return headerContainsToken(r.Header, HeaderConnection, "Upgrade") &&
		headerContainsToken(r.Header, HeaderUpgrade, "websocket")
}

// headerContainsToken checks if headerName contains the given token in its
// comma-separated token set, case-insensitive.
func headerContainsToken(h http.Header, headerName, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, p := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(p)) == token {
				return true
			}
		}
	}
	return false
}

// splitTokenList flattens comma-separated header values into trimmed tokens.
func splitTokenList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
