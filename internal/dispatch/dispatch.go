/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package dispatch is the fixed request-type-byte -> handler table,
// replacing the Python original's dynamic dispatch on a request-type
// name string with a fixed table keyed by the request-type byte.
package dispatch

import (
	"github.com/Restitutor/DiscordTZ/internal/handlers"
)

// table is built once at init and never mutated afterward, so
// concurrent Dispatch calls need no locking around the lookup.
var table = buildTable()

func buildTable() map[byte]handlers.Handler {
	all := []handlers.Handler{
		handlers.Ping,
		handlers.TimezoneByUserId,
		handlers.TimezoneByIP,
		handlers.LinkPost,
		handlers.TimezoneByUUID,
		handlers.IsLinked,
		handlers.UserIdByUUID,
		handlers.UUIDByUserId,
		handlers.TZOverridesPost,
		handlers.TZOverridesGet,
		handlers.TZOverrideRemove,
		handlers.AliasByUserId,
		handlers.UserIdByAlias,
		handlers.TimezoneByAlias,
	}
	t := make(map[byte]handlers.Handler, len(all))
	for _, h := range all {
		t[h.RequestType] = h
	}
	return t
}

// Lookup returns the handler registered for requestType, or false if
// the byte is out of range or unmapped (the "invalid-request
// response" case).
func Lookup(requestType byte) (handlers.Handler, bool) {
	h, ok := table[requestType]
	return h, ok
}

// Dispatch runs the handler registered for ctx's request type.
// Callers are responsible for populating ctx before calling: the
// RequestType itself is carried separately since Context doesn't
// store it (the handler chosen by the caller already implies it).
func Dispatch(requestType byte, ctx *handlers.Context) handlers.Response {
	h, ok := Lookup(requestType)
	if !ok {
		return handlers.Response{Code: 400, Message: "Bad Request"}
	}
	return h.Process(ctx)
}
