/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package geoip wraps a MaxMind City database lookup with hot reload
// of the .mmdb file, grounded on original_source/server/requests/
// AbstractRequests.py's SimpleRequest construction
// (Helpers.tzBot.maxMindDb.city(ip), silently swallowing
// AddressNotFoundError) and original_source/Helpers.isLocalSubnet's
// private-range regex.
package geoip

import (
	"net"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/oschwald/geoip2-golang"
)

// Blocklist is the set of ISO country codes rejected outright by
// SimpleRequest.
var Blocklist = map[string]struct{}{
	"CN": {}, "HK": {}, "MO": {}, "SG": {}, "TW": {},
}

// Lookup is the result of resolving a peer address: country code (for
// blocklist checks) and timezone name (for TimezoneByIP). Either field
// may be empty when the address was not found in the database.
type Lookup struct {
	CountryISO string
	TimeZone   string
}

// Locator resolves peer IPs to geolocation data, swapping its
// underlying reader in place when the watched .mmdb file changes on
// disk so an operator can update GeoIP data without a restart.
type Locator struct {
	path string

	mtx    sync.RWMutex
	reader *geoip2.Reader

	watcher *fsnotify.Watcher
	done    chan struct{}

	onErr func(error)
}

// Open builds a Locator from the database at path. onErr, if non-nil,
// receives any error encountered while attempting a hot reload (the
// previous reader stays in place on failure).
func Open(path string, onErr func(error)) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := w.Add(path); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}

	l := &Locator{
		path:    path,
		reader:  r,
		watcher: w,
		done:    make(chan struct{}),
		onErr:   onErr,
	}
	go l.watchLoop()
	return l, nil
}

func (l *Locator) watchLoop() {
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			// editors and atomic-rename updaters fire Write, Create, or
			// Rename; re-resolve the watch on Remove/Rename so the
			// inode swap doesn't leave us watching a stale handle.
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				l.reload()
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				l.watcher.Add(l.path)
				l.reload()
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			if l.onErr != nil {
				l.onErr(err)
			}
		case <-l.done:
			return
		}
	}
}

func (l *Locator) reload() {
	next, err := geoip2.Open(l.path)
	if err != nil {
		if l.onErr != nil {
			l.onErr(err)
		}
		return
	}
	l.mtx.Lock()
	old := l.reader
	l.reader = next
	l.mtx.Unlock()
	old.Close()
}

// Close stops the watcher and releases the database reader.
func (l *Locator) Close() error {
	close(l.done)
	l.watcher.Close()
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.reader.Close()
}

// Resolve looks up ip. A miss reports a zero Lookup with no error:
// geoip2-golang returns an empty City rather than an error for
// addresses absent from the database, which already gives us the
// original's silent-on-miss behavior for free.
func (l *Locator) Resolve(ip net.IP) (Lookup, error) {
	l.mtx.RLock()
	r := l.reader
	l.mtx.RUnlock()

	city, err := r.City(ip)
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{
		CountryISO: city.Country.IsoCode,
		TimeZone:   city.Location.TimeZone,
	}, nil
}

// Blocked reports whether iso is one of the rejected
// countries.
func Blocked(iso string) bool {
	_, ok := Blocklist[iso]
	return ok
}

// IsPrivateSubnet reports whether ip is RFC1918/loopback/link-local/
// CGNAT/documentation/reserved, mirroring original_source's
// Helpers.isLocalSubnet range-for-range (net.IP.IsPrivate covers
// RFC1918 + ULA; the rest are checked explicitly since Go's stdlib
// doesn't special-case CGNAT or the TEST-NET ranges).
func IsPrivateSubnet(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsPrivate() {
		return true
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	for _, cidr := range privateV4CIDRs {
		if cidr.Contains(v4) {
			return true
		}
	}
	return false
}

var privateV4CIDRs = mustParseCIDRs(
	"100.64.0.0/10",   // CGNAT
	"192.0.2.0/24",    // TEST-NET-1
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"240.0.0.0/4",     // reserved
	"255.255.255.255/32",
	"192.0.0.0/24", // IETF protocol assignments
	"198.18.0.0/15", // benchmarking
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}
