/*************************************************************************
 * Copyright 2026 tzapid Contributors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads and validates tzapid's JSON configuration file.
// The load/size-guard shape follows a LoadConfigFile/LoadConfigBytes
// split; encoding/json is used since the config file is JSON, not INI.
package config

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const maxConfigSize int64 = 2 * 1024 * 1024 // 2MiB is already generous for this config shape

var (
	ErrConfigTooLarge = errors.New("config: file is too large")
	ErrShortRead      = errors.New("config: failed to read entire file")
)

// Secondary describes the optional MariaDB mirror. A zero-value
// Secondary (empty DSN) means the secondary pool is absent: mutations
// then succeed primary-only.
type Secondary struct {
	DSN      string `json:"dsn"`
	PoolSize int    `json:"poolSize"`
}

// Config is the top-level JSON shape tzapid reads at startup.
type Config struct {
	ListenPort    int       `json:"listenPort"`
	PrimaryDBPath string    `json:"primaryDbPath"`
	Secondary     Secondary `json:"secondary"`
	AEADKeyB64    string    `json:"aeadKey"`
	VaultKeyB64   string    `json:"vaultKey"`
	GeoIPDBPath   string    `json:"geoipDbPath"`
	StatsDir      string    `json:"statsDir"`
	LogFile       string    `json:"logFile"`
	LogLevel      string    `json:"logLevel"`
}

// Load reads, size-checks and parses the config file at path, then
// validates it.
func Load(path string) (*Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, ErrConfigTooLarge
	}

	buf := bytes.NewBuffer(nil)
	n, err := io.Copy(buf, fin)
	if err != nil {
		return nil, err
	}
	if n != fi.Size() {
		return nil, ErrShortRead
	}

	return Parse(buf.Bytes())
}

// Parse parses and validates raw JSON config bytes.
func Parse(b []byte) (*Config, error) {
	if int64(len(b)) > maxConfigSize {
		return nil, ErrConfigTooLarge
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("config: invalid listenPort %d", c.ListenPort)
	}
	if c.PrimaryDBPath == "" {
		return errors.New("config: primaryDbPath is required")
	}
	if c.GeoIPDBPath == "" {
		return errors.New("config: geoipDbPath is required")
	}
	if c.StatsDir == "" {
		return errors.New("config: statsDir is required")
	}
	if c.Secondary.PoolSize <= 0 {
		c.Secondary.PoolSize = 8
	}
	if _, err := c.AEADKey(); err != nil {
		return fmt.Errorf("config: aeadKey: %w", err)
	}
	if _, err := c.VaultKey(); err != nil {
		return fmt.Errorf("config: vaultKey: %w", err)
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	return nil
}

// HasSecondary reports whether a MariaDB mirror was configured.
func (c *Config) HasSecondary() bool {
	return c.Secondary.DSN != ""
}

func decodeKey(b64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// AEADKey decodes the shared AEAD key used for the wire protocol.
func (c *Config) AEADKey() ([]byte, error) { return decodeKey(c.AEADKeyB64) }

// VaultKey decodes the AES-CBC key protecting the API-key vault.
func (c *Config) VaultKey() ([]byte, error) { return decodeKey(c.VaultKeyB64) }
