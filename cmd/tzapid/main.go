/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/Restitutor/DiscordTZ/internal/config"
	"github.com/Restitutor/DiscordTZ/internal/dispatch"
	"github.com/Restitutor/DiscordTZ/internal/events"
	"github.com/Restitutor/DiscordTZ/internal/geoip"
	"github.com/Restitutor/DiscordTZ/internal/handlers"
	"github.com/Restitutor/DiscordTZ/internal/linkcode"
	"github.com/Restitutor/DiscordTZ/internal/log"
	"github.com/Restitutor/DiscordTZ/internal/stats"
	"github.com/Restitutor/DiscordTZ/internal/store"
	"github.com/Restitutor/DiscordTZ/internal/transport"
	"github.com/Restitutor/DiscordTZ/internal/utils"
	"github.com/Restitutor/DiscordTZ/internal/vault"
	"github.com/Restitutor/DiscordTZ/internal/version"
)

const defaultConfigLoc = `/opt/tzapid/etc/tzapid.conf`

const reconcileInterval = 15 * time.Minute

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	ver     = flag.Bool("version", false, "Print the version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		version.PrintVersion(os.Stdout)
		os.Exit(0)
	}

	lg, err := log.NewStderrLogger("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get stderr logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Close()

	cfg, err := config.Load(*confLoc)
	if err != nil {
		lg.Fatal("failed to load configuration", log.KVErr(err))
		return
	}

	if cfg.LogFile != "" {
		fout, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			lg.Fatal("failed to open log file", log.KV("path", cfg.LogFile), log.KVErr(err))
			return
		}
		if err := lg.AddWriter(fout); err != nil {
			lg.Fatal("failed to add log writer", log.KVErr(err))
			return
		}
	}
	if err := lg.SetLevelString(cfg.LogLevel); err != nil {
		lg.Fatal("invalid log level", log.KV("level", cfg.LogLevel), log.KVErr(err))
		return
	}

	aeadKey, err := cfg.AEADKey()
	if err != nil {
		lg.Fatal("bad aeadKey", log.KVErr(err))
		return
	}
	vaultKey, err := cfg.VaultKey()
	if err != nil {
		lg.Fatal("bad vaultKey", log.KVErr(err))
		return
	}

	st, err := store.Open(cfg.PrimaryDBPath, cfg.Secondary.DSN, cfg.Secondary.PoolSize)
	if err != nil {
		lg.Fatal("failed to open store", log.KVErr(err))
		return
	}
	defer st.Close()
	lg.Info("store opened", log.KV("hasSecondary", st.HasSecondary()))

	vlt, err := vault.Open(st.Primary())
	if err != nil {
		lg.Fatal("failed to open vault", log.KVErr(err))
		return
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath, func(err error) {
		lg.Error("geoip reload failed", log.KVErr(err))
	})
	if err != nil {
		lg.Fatal("failed to open geoip database", log.KVErr(err))
		return
	}
	defer geo.Close()

	statsCollector, err := stats.Open(cfg.StatsDir)
	if err != nil {
		lg.Fatal("failed to open stats collector", log.KVErr(err))
		return
	}

	sink := events.New(lg)
	svc := handlers.Services{
		Store:     st,
		Vault:     vlt,
		VaultKey:  vaultKey,
		LinkCodes: linkcode.New(),
		Geo:       geo,
		Events:    sink,
		Stats:     statsCollector,
	}

	ctx, _, stop := utils.NotifyContext(context.Background())
	defer stop()

	go st.RunReconciler(ctx, reconcileInterval, func(err error) {
		lg.Error("reconcile failed", log.KVErr(err))
	})

	go func() {
		for {
			next := time.Now().Truncate(time.Hour).Add(time.Hour + 10*time.Second)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
				if err := statsCollector.Rotate(time.Now()); err != nil {
					lg.Error("stats rotation failed", log.KVErr(err))
				}
			}
		}
	}()

	listener := &transport.Listener{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		AEADKey: aeadKey,
		OnRequest: func(client transport.Client, requestType byte, jsonBody []byte, receivedBytes int, protocol events.Protocol) {
			handleRequest(ctx, svc, sink, statsCollector, client, requestType, jsonBody, receivedBytes, protocol)
		},
		OnTransformError: func(client transport.Client, requestType byte, receivedBytes int, err error) {
			_ = statsCollector.AddReceivedBandwidth(int64(receivedBytes))
			statsCollector.AddFailedRequest()
			n, sendErr := client.Send(requestType, []byte(`{"code":400,"message":"Bad Request"}`))
			if sendErr == nil {
				_ = statsCollector.AddSentBandwidth(int64(n))
			}
		},
		OnError: func(err error) {
			lg.Error("accept error", log.KVErr(err))
		},
	}

	lg.Info("listening", log.KV("addr", listener.Addr))
	if err := listener.Run(ctx); err != nil {
		lg.Fatal("failed to start listener", log.KVErr(err))
		return
	}
	lg.Info("shutting down")
}

func handleRequest(
	ctx context.Context,
	svc handlers.Services,
	sink *events.Sink,
	statsCollector *stats.Collector,
	client transport.Client,
	requestType byte,
	jsonBody []byte,
	receivedBytes int,
	protocol events.Protocol,
) {
	statsCollector.AddReceivedBandwidth(int64(receivedBytes))

	var data map[string]interface{}
	if err := json.Unmarshal(jsonBody, &data); err != nil {
		statsCollector.AddFailedRequest()
		if n, err := client.Send(requestType, []byte(`{"code":400,"message":"Bad Request"}`)); err == nil {
			statsCollector.AddSentBandwidth(int64(n))
		}
		return
	}

	hctx := &handlers.Context{
		Ctx:      ctx,
		Client:   client,
		Protocol: protocol,
		Data:     data,
		Services: svc,
	}
	resp := dispatch.Dispatch(requestType, hctx)

	h, known := dispatch.Lookup(requestType)
	name := h.Name
	if !known {
		name = "Unknown"
	}
	respBody, _ := json.Marshal(map[string]interface{}{"code": resp.Code, "message": resp.Message})

	if !resp.Suppressed {
		if n, err := client.Send(requestType, respBody); err == nil {
			statsCollector.AddSentBandwidth(int64(n))
		}
	}

	if resp.Code >= 200 && resp.Code < 300 {
		statsCollector.AddSuccessfulRequest()
	} else {
		statsCollector.AddFailedRequest()
	}
	statsCollector.AddProtocol(string(protocol))
	statsCollector.AddKnownRequestType(name)
	if hctx.Country != "" {
		statsCollector.AddRequestCountry(hctx.Country)
	}

	country := hctx.Country
	if hctx.LocalPeer {
		country = "Local"
	}
	loggedResp := respBody
	if name == "LinkPost" && resp.Code == 200 {
		// The link code always reaches the client, but is redacted from
		// the event sink.
		redacted, err := json.Marshal(map[string]interface{}{"code": resp.Code, "message": "[redacted]"})
		if err == nil {
			loggedResp = redacted
		}
	}
	loggedReq := jsonBody
	if name == "TimezoneByIP" {
		if redacted, err := redactField(data, "ip"); err == nil {
			loggedReq = redacted
		}
	}
	_ = sink.Emit(events.Event{
		RequestType: name,
		Protocol:    protocol,
		PeerCountry: country,
		Request:     string(loggedReq),
		Response:    string(loggedResp),
		Code:        resp.Code,
	})
}

// redactField re-marshals data with field replaced by "[redacted]",
// for event-sink logging of request bodies that carry a value the
// client must still receive but that should never land in a log.
func redactField(data map[string]interface{}, field string) ([]byte, error) {
	clone := make(map[string]interface{}, len(data))
	for k, v := range data {
		clone[k] = v
	}
	clone[field] = "[redacted]"
	return json.Marshal(clone)
}
