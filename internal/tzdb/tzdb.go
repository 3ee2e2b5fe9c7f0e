/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package tzdb validates IANA timezone names ("timezones
// are normalized with spaces->underscores on write; comparisons
// against the tzdb use underscore form"). Grounded on
// original_source/shared/Timezones.py's fetchTimezones/checkList,
// which walks /usr/share/zoneinfo; here the system/embedded tzdata
// database reached through time.LoadLocation serves the same role
// without having to walk and cache the filesystem ourselves.
package tzdb

import (
	"strings"
	"time"

	_ "time/tzdata" // embed the IANA database so validation works even without a system zoneinfo dir
)

// Normalize converts a user-supplied zone name into canonical
// underscore form, e.g. "America/New York" -> "America/New_York".
func Normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "_")
}

// Valid reports whether name (after normalization) is a recognized
// IANA timezone. "UTC" is accepted; "Local", which time.LoadLocation
// also accepts, is rejected. Any other name must be in Area/City form.
func Valid(name string) bool {
	norm := Normalize(name)
	if norm == "" || norm == "UTC" || norm == "Local" {
		return norm == "UTC"
	}
	if !strings.Contains(norm, "/") {
		return false
	}
	_, err := time.LoadLocation(norm)
	return err == nil
}

// Load normalizes and loads name as a *time.Location, suitable for
// formatting a timestamp in that zone. Callers should call Valid first
// when they need a bool rather than an error.
func Load(name string) (*time.Location, error) {
	return time.LoadLocation(Normalize(name))
}
