/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package stats is the hourly-bucketed request statistics collector.
// Field names and bucket layout are carried from
// original_source/database/stats/StatsData.py and StatsDatabase.py
// (stats/stats-YYYY-MM-DD/stats-HH:00.json, whole-struct JSON dumps on
// every mutation); atomic whole-file writes use a safefile-based
// write-then-commit pattern instead of StatsDatabase.py's plain
// file.open("w") (the Python original is not atomic against a crash
// mid-write; this port closes that gap).
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dchest/safefile"
)

// Bucket is one hour's worth of counters, field-for-field matching
// StatsData.py's dataclass.
type Bucket struct {
	SuccessfulRequestCount        int            `json:"successfulRequestCount"`
	FailedRequestCount            int            `json:"failedRequestCount"`
	RequestCountries              map[string]int `json:"requestCountries"`
	EstablishedKnownRequestTypes  map[string]int `json:"establishedKnownRequestTypes"`
	Protocols                     map[string]int `json:"protocols"`
	ReceivedDataBandwidth         int64          `json:"receivedDataBandwidth"`
	SentDataBandwidth             int64          `json:"sentDataBandwidth"`
	SuccessfulCommandExecutionCount int          `json:"successfulCommandExecutionCount"`
	FailedCommandExecutionCount   int            `json:"failedCommandExecutionCount"`
	RanCommandNames               map[string]int `json:"ranCommandNames"`
}

func newBucket() *Bucket {
	return &Bucket{
		RequestCountries:             make(map[string]int),
		EstablishedKnownRequestTypes: make(map[string]int),
		Protocols:                    make(map[string]int),
		RanCommandNames:              make(map[string]int),
	}
}

// Collector owns the current hour's bucket and flushes the whole
// struct to disk after every mutation, matching StatsDatabase.py's
// dumpCurrent-after-every-add pattern.
type Collector struct {
	dir string

	mtx      sync.Mutex
	current  *Bucket
	hourFile string
	hourTime time.Time
}

// Open creates dir if needed and loads (or creates) the bucket file
// for the current hour.
func Open(dir string) (*Collector, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}
	c := &Collector{dir: dir}
	if err := c.rotate(time.Now()); err != nil {
		return nil, err
	}
	return c, nil
}

func bucketPath(dir string, t time.Time) string {
	t = t.Truncate(time.Hour)
	dateDir := filepath.Join(dir, fmt.Sprintf("stats-%s", t.Format("2006-01-02")))
	return filepath.Join(dateDir, fmt.Sprintf("stats-%s.json", t.Format("15:00")))
}

// rotate loads (or creates) the bucket file for the hour containing t.
// Callers must hold mtx.
func (c *Collector) rotate(t time.Time) error {
	t = t.Truncate(time.Hour)
	path := bucketPath(c.dir, t)

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	b, err := loadBucket(path)
	if err != nil {
		return err
	}
	c.current = b
	c.hourFile = path
	c.hourTime = t
	return nil
}

func loadBucket(path string) (*Bucket, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newBucket(), nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return newBucket(), nil
	}
	b := newBucket()
	if err := json.Unmarshal(raw, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Rotate checks whether wall time has crossed into a new hour and, if
// so, opens that hour's bucket. cmd/tzapid calls it shortly after each
// hour boundary.
func (c *Collector) Rotate(now time.Time) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if now.Truncate(time.Hour).Equal(c.hourTime) {
		return nil
	}
	return c.rotate(now)
}

// dumpLocked atomically writes the whole current bucket to its hour
// file. Callers must hold mtx.
func (c *Collector) dumpLocked() error {
	fout, err := safefile.Create(c.hourFile, 0640)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(fout).Encode(c.current); err != nil {
		fout.File.Close()
		os.Remove(fout.Name())
		return err
	}
	if err := fout.Commit(); err != nil {
		fout.File.Close()
		os.Remove(fout.Name())
		return err
	}
	return nil
}

func (c *Collector) mutate(fn func(b *Bucket)) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	fn(c.current)
	return c.dumpLocked()
}

func (c *Collector) AddSuccessfulRequest() error {
	return c.mutate(func(b *Bucket) { b.SuccessfulRequestCount++ })
}

func (c *Collector) AddFailedRequest() error {
	return c.mutate(func(b *Bucket) { b.FailedRequestCount++ })
}

func (c *Collector) AddRequestCountry(country string) error {
	return c.mutate(func(b *Bucket) { b.RequestCountries[country]++ })
}

func (c *Collector) AddKnownRequestType(requestType string) error {
	return c.mutate(func(b *Bucket) { b.EstablishedKnownRequestTypes[requestType]++ })
}

func (c *Collector) AddProtocol(protocol string) error {
	if protocol != "TCP" && protocol != "UDP" {
		return nil
	}
	return c.mutate(func(b *Bucket) { b.Protocols[protocol]++ })
}

func (c *Collector) AddReceivedBandwidth(n int64) error {
	return c.mutate(func(b *Bucket) { b.ReceivedDataBandwidth += n })
}

func (c *Collector) AddSentBandwidth(n int64) error {
	return c.mutate(func(b *Bucket) { b.SentDataBandwidth += n })
}

// Snapshot returns a copy of the current bucket for inspection.
func (c *Collector) Snapshot() Bucket {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return *c.current
}
