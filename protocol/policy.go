// File: protocol/policy.go
// Upgrade validation and negotiation policy.
package protocol

import (
	"fmt"
	"net/http"
	"strings"
)

// SupportedVersion is the RFC 6455 protocol version this library speaks.
const SupportedVersion = "13"

// Policy holds the server-side negotiation surface for one listener: which
// origins, protocol versions, subprotocols and extensions it accepts. The
// zero value allows every origin, speaks version 13 only and negotiates no
// subprotocols or extensions.
type Policy struct {
	// OriginAllowed decides whether an upgrade from the given Origin header
	// value may proceed. Nil means every origin is allowed; checking the
	// origin only makes sense against browser clients, a non-browser client
	// can claim any origin it likes.
	OriginAllowed func(origin string) bool

	// Versions lists the accepted Sec-WebSocket-Version values. Empty means
	// SupportedVersion only.
	Versions []string

	// Subprotocols and Extensions list what the server is willing to speak.
	// Empty lists mean no negotiation takes place, which is a valid outcome.
	Subprotocols []string
	Extensions   []string

	// ServerName, when non-empty, is emitted as the Server response header.
	ServerName string
}

// Negotiate consumes a parsed upgrade request and produces the response for
// it. Every malformed or unsupported request yields a rejection response,
// never an error: rejections are expected traffic, not failures.
func (p *Policy) Negotiate(req *Request) *Response {
	if req.Method != http.MethodGet {
		return p.reject(http.StatusMethodNotAllowed, "upgrade request method must be GET")
	}
	if !req.HasUpgradeHeaders() {
		return p.reject(http.StatusBadRequest, "missing or invalid Upgrade/Connection headers")
	}
	if req.Key == "" {
		return p.reject(http.StatusBadRequest, "missing Sec-WebSocket-Key header")
	}
	if !p.versionSupported(req.Version) {
		resp := p.reject(http.StatusUpgradeRequired, fmt.Sprintf("unsupported WebSocket version %q", req.Version))
		resp.Header.Set(HeaderSecWebSocketVersion, strings.Join(p.versions(), ", "))
		return resp
	}
	if p.OriginAllowed != nil && !p.OriginAllowed(req.Origin) {
		return p.reject(http.StatusForbidden, "origin not allowed")
	}

	hdr := make(http.Header)
	hdr.Set(HeaderUpgrade, "websocket")
	hdr.Set(HeaderConnection, "Upgrade")
	hdr.Set(HeaderSecWebSocketAccept, AcceptKey(req.Key))
	if p.ServerName != "" {
		hdr.Set("Server", p.ServerName)
	}
	if proto := firstMutual(p.Subprotocols, req.Protocols); proto != "" {
		hdr.Set(HeaderSecWebSocketProto, proto)
	}
	if exts := intersect(p.Extensions, req.Extensions); len(exts) > 0 {
		hdr.Set(HeaderSecWebSocketExt, strings.Join(exts, ", "))
	}
	return &Response{
		Status:     http.StatusSwitchingProtocols,
		Header:     hdr,
		canUpgrade: true,
	}
}

func (p *Policy) reject(status int, reason string) *Response {
	hdr := make(http.Header)
	if p.ServerName != "" {
		hdr.Set("Server", p.ServerName)
	}
	return &Response{Status: status, Reason: reason, Header: hdr}
}

func (p *Policy) versions() []string {
	if len(p.Versions) == 0 {
		return []string{SupportedVersion}
	}
	return p.Versions
}

func (p *Policy) versionSupported(v string) bool {
	for _, s := range p.versions() {
		if s == v {
			return true
		}
	}
	return false
}

// firstMutual returns the first server-supported value the client also
// offered. RFC 6455 has the server select a single subprotocol.
func firstMutual(supported, offered []string) string {
	for _, s := range supported {
		for _, o := range offered {
			if strings.EqualFold(s, o) {
				return s
			}
		}
	}
	return ""
}

// intersect keeps server-supported values the client offered, preserving the
// server's preference order.
func intersect(supported, offered []string) []string {
	var out []string
	for _, s := range supported {
		for _, o := range offered {
			if strings.EqualFold(s, o) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
