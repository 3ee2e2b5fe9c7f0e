/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package handlers

import (
	"errors"
	"net"
	"os"
	"strings"

	"github.com/Restitutor/DiscordTZ/internal/linkcode"
	"github.com/Restitutor/DiscordTZ/internal/store"
	"github.com/Restitutor/DiscordTZ/internal/tzdb"
	"github.com/Restitutor/DiscordTZ/internal/vault"
)

// simpleGuards is the base guard set every handler runs: geolocate and
// blocklist-check the peer (SimpleRequest).
var simpleGuards = []Guard{GeoGuard}

func partiallyEncryptedGuards() []Guard {
	return append(append([]Guard{}, simpleGuards...), PartiallyEncryptedGuard)
}

func encryptedGuards() []Guard {
	return append(append([]Guard{}, simpleGuards...), EncryptedGuard)
}

func apiGuards(perms vault.Permission) []Guard {
	return append(partiallyEncryptedGuards(), RequireAPIKey(perms))
}

func userIDGuards(perms vault.Permission) []Guard {
	return append(apiGuards(perms), RequireUserID)
}

func uuidGuards(perms vault.Permission) []Guard {
	return append(apiGuards(perms), RequireUUID)
}

func stringField(data map[string]interface{}, key string) (string, bool) {
	v, ok := data[key].(string)
	return v, ok
}

// Ping is request-type 0, Simple-gated only.
var Ping = Handler{
	RequestType: 0,
	Name:        "PingRequest",
	Guards:      simpleGuards,
	Run: func(ctx *Context) {
		ctx.setOnce(Response{Code: 200, Message: "Pong"})
	},
}

// TimezoneByUserId is request-type 1, requires DISCORD_ID.
var TimezoneByUserId = Handler{
	RequestType: 1,
	Name:        "TimezoneByUserId",
	Guards:      userIDGuards(vault.DiscordID),
	Run: func(ctx *Context) {
		tz, err := ctx.Services.Store.TimezoneByUserID(ctx.Ctx, ctx.UserID)
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

// TimezoneByIP is request-type 2, requires IP_ADDRESS. If the asked IP
// is within a private subnet, report the server's own local timezone
// instead of a GeoIP lookup; the ip itself is redacted in event logs
// by the caller.
var TimezoneByIP = Handler{
	RequestType: 2,
	Name:        "TimezoneByIP",
	Guards:      apiGuards(vault.IPAddress),
	Run: func(ctx *Context) {
		asked, ok := stringField(ctx.Data, "ip")
		if !ok {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		ip := net.ParseIP(asked)
		if ip == nil {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		if isPrivate(ip) {
			ctx.setOnce(Response{Code: 200, Message: localZoneName()})
			return
		}
		if ctx.Services.Geo == nil {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		lookup, err := ctx.Services.Geo.Resolve(ip)
		if err != nil || lookup.TimeZone == "" {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: lookup.TimeZone})
	},
}

// LinkPost is request-type 3, requires UUID_POST.
var LinkPost = Handler{
	RequestType: 3,
	Name:        "LinkPost",
	Guards:      uuidGuards(vault.UUIDPost),
	Run: func(ctx *Context) {
		tzRaw, ok := stringField(ctx.Data, "timezone")
		if !ok || !tzdb.Valid(tzRaw) {
			ctx.setOnce(Response{Code: 400, Message: "Bad Request"})
			return
		}
		tz := tzdb.Normalize(tzRaw)

		if _, err := ctx.Services.Store.UserIDByUUID(ctx.Ctx, ctx.UUID); err == nil {
			ctx.setOnce(Response{Code: 409, Message: "UUID already registered"})
			return
		}
		code, err := ctx.Services.LinkCodes.Create(ctx.UUID, tz)
		if errors.Is(err, linkcode.ErrUUIDPending) {
			ctx.setOnce(Response{Code: 409, Message: "UUID already registered"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: code})
	},
}

// TimezoneByUUID is request-type 4, requires MINECRAFT_UUID.
var TimezoneByUUID = Handler{
	RequestType: 4,
	Name:        "TimezoneByUUID",
	Guards:      uuidGuards(vault.MinecraftUUID),
	Run: func(ctx *Context) {
		tz, err := ctx.Services.Store.TimezoneByUUID(ctx.Ctx, ctx.UUID)
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

// IsLinked is request-type 5, requires MINECRAFT_UUID.
var IsLinked = Handler{
	RequestType: 5,
	Name:        "IsLinked",
	Guards:      uuidGuards(vault.MinecraftUUID),
	Run: func(ctx *Context) {
		userID, err := ctx.Services.Store.UserIDByUUID(ctx.Ctx, ctx.UUID)
		if errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		alias, err := ctx.Services.Store.AliasByUserID(ctx.Ctx, userID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: alias})
	},
}

// UserIdByUUID is request-type 6, requires MINECRAFT_UUID+DISCORD_ID.
var UserIdByUUID = Handler{
	RequestType: 6,
	Name:        "UserIdByUUID",
	Guards:      uuidGuards(vault.MinecraftUUID | vault.DiscordID),
	Run: func(ctx *Context) {
		userID, err := ctx.Services.Store.UserIDByUUID(ctx.Ctx, ctx.UUID)
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

// UUIDByUserId is request-type 7, requires MINECRAFT_UUID+DISCORD_ID.
var UUIDByUserId = Handler{
	RequestType: 7,
	Name:        "UUIDByUserId",
	Guards:      userIDGuards(vault.MinecraftUUID | vault.DiscordID),
	Run: func(ctx *Context) {
		uuid, err := ctx.Services.Store.UUIDByUserID(ctx.Ctx, ctx.UserID)
		if errors.Is(err, store.ErrNotFound) {
			ctx.setOnce(Response{Code: 404, Message: "Not Found"})
			return
		}
		if err != nil {
			ctx.setOnce(Response{Code: 500, Message: "Internal Error"})
			return
		}
		ctx.setOnce(Response{Code: 200, Message: uuid})
	},
}

func isPrivate(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// localZoneName reports the server's own IANA zone name, grounded on
// original_source/database/DataDatabase.py's defaultTz(): resolve the
// /etc/localtime symlink and take its last two path components
// (Area/City).
func localZoneName() string {
	link, err := os.Readlink("/etc/localtime")
	if err != nil {
		return "UTC"
	}
	parts := strings.Split(link, "/")
	if len(parts) < 2 {
		return "UTC"
	}
	name := parts[len(parts)-2] + "/" + parts[len(parts)-1]
	if !tzdb.Valid(name) {
		return "UTC"
	}
	return name
}
