/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package events is the structured success/error sink,
// grounded on original_source/server/EventHandler.py's
// triggerSuccess/triggerError split and AbstractRequests.py's
// sendResponse (the code>=200<300 success/error branch, the
// PingRequest suppression, and the geo-drop-is-logged-but-not-sent
// rule). It reuses internal/log's leveled, multi-writer RFC5424
// output instead of a bespoke formatter: a success stream logged at
// INFO, an error stream logged at WARN, on the same underlying Logger.
package events

import (
	"github.com/Restitutor/DiscordTZ/internal/log"
)

// Protocol names the transport a request arrived over.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"
)

// Event describes one completed request, already redacted by the
// caller where redaction is required (ip in TimezoneByIP, the code in
// LinkPost's response).
type Event struct {
	RequestType string
	Protocol    Protocol
	PeerCountry string // "Local" or a hostname for private subnets, else ISO code
	Flags       []string
	Request     string
	Response    string
	Code        int
}

// Sink fans completed-request events to a success or error stream.
type Sink struct {
	logger *log.Logger
}

// New builds a Sink writing through logger.
func New(logger *log.Logger) *Sink {
	return &Sink{logger: logger}
}

// Suppressed is the set of request-type names never logged, whatever
// their outcome: PingRequest is suppressed entirely.
var Suppressed = map[string]struct{}{
	"PingRequest": {},
}

// Emit records ev on the success or error stream per its code, unless
// its request type is suppressed. The geo-drop case (code 498) is
// logged here but the caller must separately ensure no bytes are sent
// to the client for it.
func (s *Sink) Emit(ev Event) error {
	if _, ok := Suppressed[ev.RequestType]; ok {
		return nil
	}

	params := eventParams(ev)
	if ev.Code >= 200 && ev.Code < 300 {
		return s.logger.Info(ev.RequestType, params...)
	}
	return s.logger.Warn(ev.RequestType, params...)
}

func eventParams(ev Event) []log.SDParam {
	params := []log.SDParam{
		log.KV("protocol", string(ev.Protocol)),
		log.KV("peerCountry", ev.PeerCountry),
		log.KV("code", ev.Code),
		log.KV("flags", joinFlags(ev.Flags)),
	}
	if ev.Request != "" {
		params = append(params, log.KV("request", ev.Request))
	}
	if ev.Response != "" {
		params = append(params, log.KV("response", ev.Response))
	}
	return params
}

func joinFlags(flags []string) string {
	if len(flags) == 0 {
		return "-"
	}
	out := flags[0]
	for _, f := range flags[1:] {
		out += "," + f
	}
	return out
}
