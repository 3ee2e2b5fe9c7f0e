/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Supplemented handlers (request types 8-13), added from features
// present in original_source/ but dropped by the distilled request
// surface: the TZ-override admin surface
// (original_source/server/requests/Requests.py's
// TimeZoneOverridesPost/Get and database/DataDatabase.py's
// addTzOverride/getTzOverrides/removeTzOverride) and alias binding
// lookups (DataDatabase.py's setAlias/getAlias/getUserByAlias/
// getTimeZoneByAlias).
package handlers

import (
	"errors"

	"github.com/Restitutor/DiscordTZ/internal/store"
	"github.com/Restitutor/DiscordTZ/internal/tzdb"
	"github.com/Restitutor/DiscordTZ/internal/vault"
)

// TZOverridesPost is request-type 8, requires TZ_OVERRIDES_POST.
// Payload: {"overrides": {"<uuid>": "<timezone>", ...}}.
var TZOverridesPost = Handler{
	RequestType: 8,
	Name:        "TZOverridesPost",
	Guards:      apiGuards(vault.TZOverridesPost),
	Run: func(ctx *Context) {
		raw, ok := ctx.Data["overrides"].(map[string]interface{})
		if !ok || len(raw) == 0 {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		for uuid, tzVal := range raw {
			if !validUUID(uuid) {
				ctx.setOnce(Response{Code: 400, Message: "Invalid UUID: " + uuid})
				return
			}
			tzRaw, ok := tzVal.(string)
			if !ok || !tzdb.Valid(tzRaw) {
				ctx.setOnce(Response{Code: 400, Message: "Invalid timezone: " + tzRaw})
				return
			}
		}
		for uuid, tzVal := range raw {
			tz := tzdb.Normalize(tzVal.(string))
			if err := ctx.Services.Store.SetTzOverride(ctx.Ctx, uuid, tz); err != nil {
				ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
				return
			}
		}
		ctx.setOnce(Response{Code: 200, Message: "OK"})
	},
}

// TZOverridesGet is request-type 9, requires TZ_OVERRIDES_GET.
var TZOverridesGet = Handler{
	RequestType: 9,
	Name:        "TZOverridesGet",
	Guards:      apiGuards(vault.TZOverridesGet),
	Run: func(ctx *Context) {
		overrides, err := ctx.Services.Store.AllTzOverrides(ctx.Ctx)
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: overrides})
	},
}

// TZOverrideRemove is request-type 10, requires TZ_OVERRIDES_POST (the
// same bit that grants write access governs deletion).
var TZOverrideRemove = Handler{
	RequestType: 10,
	Name:        "TZOverrideRemove",
	Guards:      uuidGuards(vault.TZOverridesPost),
	Run: func(ctx *Context) {
		if err := ctx.Services.Store.RemoveTzOverride(ctx.Ctx, ctx.UUID); err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: "OK"})
	},
}

// AliasByUserId is request-type 11, requires DISCORD_ID + TZBOT_ALIAS.
var AliasByUserId = Handler{
	RequestType: 11,
	Name:        "AliasByUserId",
	Guards:      userIDGuards(vault.DiscordID | vault.TZBotAlias),
	Run: func(ctx *Context) {
		alias, err := ctx.Services.Store.AliasByUserID(ctx.Ctx, ctx.UserID)
		if errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: alias})
	},
}

// UserIdByAlias is request-type 12, requires DISCORD_ID + TZBOT_ALIAS.
var UserIdByAlias = Handler{
	RequestType: 12,
	Name:        "UserIdByAlias",
	Guards:      apiGuards(vault.DiscordID | vault.TZBotAlias),
	Run: func(ctx *Context) {
		alias, ok := stringField(ctx.Data, "alias")
		if !ok || alias == "" {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		userID, err := ctx.Services.Store.UserIDByAlias(ctx.Ctx, alias)
		if errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: userID})
	},
}

// TimezoneByAlias is request-type 13, requires TZBOT_ALIAS.
var TimezoneByAlias = Handler{
	RequestType: 13,
	Name:        "TimezoneByAlias",
	Guards:      apiGuards(vault.TZBotAlias),
	Run: func(ctx *Context) {
		alias, ok := stringField(ctx.Data, "alias")
		if !ok || alias == "" {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		tz, err := ctx.Services.Store.TimezoneByAlias(ctx.Ctx, alias)
		if errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: tz})
	},
}
