/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package handlers implements the request handler surface.
// The Python original models this as a deep inheritance chain
// (SimpleRequest -> PartiallyEncryptedRequest -> EncryptedRequest/
// APIRequest -> UserIdRequest/UUIDRequest); this package replaces the
// chain with composition instead: an ordered list of guard functions
// shared by a Handler descriptor
// {requestType, guards, run}, grounded on
// original_source/server/requests/AbstractRequests.py for exact guard
// semantics (geo check, unencrypted-unless-local check, apiKey
// membership+permission check, userId/uuid payload validation).
package handlers

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/Restitutor/DiscordTZ/internal/events"
	"github.com/Restitutor/DiscordTZ/internal/geoip"
	"github.com/Restitutor/DiscordTZ/internal/linkcode"
	"github.com/Restitutor/DiscordTZ/internal/stats"
	"github.com/Restitutor/DiscordTZ/internal/store"
	"github.com/Restitutor/DiscordTZ/internal/transport"
	"github.com/Restitutor/DiscordTZ/internal/vault"
)

// Response is the handler's answer, assigned at most once: later
// assignments never overwrite a response a guard already set. Suppressed is set for the geo-drop case
// (code 498): the event sink still logs it, but no bytes are sent.
type Response struct {
	Code       int
	Message    interface{}
	Suppressed bool
}

// validUUID reports whether v is a canonically-formatted UUID (any
// version); link-code and API-key payloads only ever carry a string,
// never a parsed uuid.UUID, so this stays a validity check rather than
// a conversion.
func validUUID(v string) bool {
	// uuid.Parse also accepts unhyphenated, braced and urn: forms; only
	// the 36-character hyphenated form is canonical.
	if len(v) != 36 {
		return false
	}
	_, err := uuid.Parse(v)
	return err == nil
}

// Services bundles every collaborator a handler might need. Held by
// value in each Context so concrete handlers don't each thread their
// own dependency list.
type Services struct {
	Store     *store.Store
	Vault     *vault.Vault
	VaultKey  []byte
	LinkCodes *linkcode.Registry
	Geo       *geoip.Locator
	Events    *events.Sink
	Stats     *stats.Collector
}

// Context is the per-request state threaded through the guard chain
// and into the concrete handler's Run. Fields are filled in
// progressively by guards (Country by the geo guard, APIKey by the
// API-key guard, UserID/UUID by their respective guards).
type Context struct {
	Ctx      context.Context
	Client   transport.Client
	Protocol events.Protocol
	Data     map[string]interface{}
	Services Services

	Country    string // ISO code, "" if unresolved
	LocalPeer  bool
	APIKey     vault.APIKey
	UserID     int64
	UUID       string

	Response *Response
}

// setOnce assigns resp only if no response has been set yet, per the
// "later assignments do not overwrite a set error" invariant.
func (c *Context) setOnce(resp Response) {
	if c.Response == nil {
		c.Response = &resp
	}
}

// Guard inspects/extends ctx and may set ctx.Response to short-circuit
// the remaining chain. Guards never clear an already-set response.
type Guard func(ctx *Context)

// Handler is a fully-specified request type: its wire byte, ordered
// guard chain, and business-logic body.
type Handler struct {
	RequestType byte
	Name        string
	Guards      []Guard
	Run         func(ctx *Context)
}

// Process runs every guard in order, stopping early once a response is
// set, then runs h.Run unless a guard already produced a response.
func (h Handler) Process(ctx *Context) Response {
	if ctx.Ctx == nil {
		ctx.Ctx = context.Background()
	}
	for _, g := range h.Guards {
		g(ctx)
		if ctx.Response != nil {
			return *ctx.Response
		}
	}
	h.Run(ctx)
	if ctx.Response == nil {
		ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
	}
	return *ctx.Response
}

// GeoGuard resolves the peer's country and rejects blocklisted ones
// with a suppressed 498, matching SimpleRequest's construction-time
// geolocation and process()'s blocklist check. A lookup
// miss is silent: Country stays empty and processing continues.
func GeoGuard(ctx *Context) {
	ip := hostIP(ctx.Client.Peer())
	if ip == nil || ctx.Services.Geo == nil {
		return
	}
	ctx.LocalPeer = geoip.IsPrivateSubnet(ip)
	if ctx.LocalPeer {
		return
	}
	lookup, err := ctx.Services.Geo.Resolve(ip)
	if err != nil || lookup.CountryISO == "" {
		return
	}
	ctx.Country = lookup.CountryISO
	if geoip.Blocked(lookup.CountryISO) {
		ctx.setOnce(Response{Code: 498, Message: "BadGeoloc", Suppressed: true})
	}
}

// PartiallyEncryptedGuard rejects an unencrypted request from a
// non-private peer (PartiallyEncryptedRequest).
func PartiallyEncryptedGuard(ctx *Context) {
	if ctx.Client.Flags().Encrypted() {
		return
	}
	if ctx.LocalPeer {
		return
	}
	ctx.setOnce(Response{Code: 400, Message: "Bad Request, Unencrypted"})
}

// EncryptedGuard requires an encryption flag unconditionally
// (EncryptedRequest).
func EncryptedGuard(ctx *Context) {
	if !ctx.Client.Flags().Encrypted() {
		ctx.setOnce(Response{Code: 400, Message: "Bad Request, Unencrypted"})
	}
}

// RequireAPIKey builds the APIRequest guard for requiredPerms: it
// needs headers.apiKey present, a member of the approved table,
// decryptable to an APIKey, and holding every required permission bit.
func RequireAPIKey(requiredPerms vault.Permission) Guard {
	return func(ctx *Context) {
		raw, ok := ctx.Data["apiKey"].(string)
		if !ok || raw == "" {
			ctx.setOnce(Response{Code: 403, Message: "Forbidden"})
			return
		}
		if ctx.Services.Vault == nil {
			ctx.setOnce(Response{Code: 403, Message: "Forbidden"})
			return
		}
		valid, err := ctx.Services.Vault.IsValid(ctx.Ctx, raw)
		if err != nil || !valid {
			ctx.setOnce(Response{Code: 403, Message: "Forbidden"})
			return
		}
		key, err := vault.Decode(raw, ctx.Services.VaultKey)
		if err != nil {
			ctx.setOnce(Response{Code: 403, Message: "Forbidden"})
			return
		}
		if !key.HasPermissions(requiredPerms) {
			ctx.setOnce(Response{Code: 403, Message: "Forbidden"})
			return
		}
		ctx.APIKey = key
	}
}

// RequireUserID requires a numeric data.userId (UserIdRequest).
func RequireUserID(ctx *Context) {
	v, ok := ctx.Data["userId"]
	if !ok {
		ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
		return
	}
	n, ok := asInt64(v)
	if !ok {
		ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
		return
	}
	ctx.UserID = n
}

// RequireUUID requires data.uuid to match the canonical UUID shape
// (UUIDRequest).
func RequireUUID(ctx *Context) {
	v, ok := ctx.Data["uuid"].(string)
	if !ok || !validUUID(v) {
		ctx.setOnce(Response{Code: 400, Message: "Invalid UUID"})
		return
	}
	ctx.UUID = v
}

func hostIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil
		}
		return net.ParseIP(host)
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
