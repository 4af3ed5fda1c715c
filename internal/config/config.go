// Package config loads the per-partition engine configuration using a
// JSON-with-comments file that overlays onto a set of defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"
)

// ErrDataDirRequired reports a config missing the required data directory.
var ErrDataDirRequired = errors.New("config: data_dir is required")

// Config is the engine's configuration surface, including the adapter
// wiring needed to construct the KV store, index and log for a partition.
type Config struct {
	// FlushSleepSec is the interval between background flush ticks.
	FlushSleepSec int `json:"flush_sleep_sec,omitempty"`
	// LatchSlots is the size of the striped latch table.
	LatchSlots int `json:"latch_slots,omitempty"`
	// ReadOnly suppresses the flush task and all writes.
	ReadOnly bool `json:"readonly,omitempty"`

	// DataDir is the base directory for this partition's bbolt/bleve/raft
	// files. Required.
	DataDir string `json:"data_dir"`

	// RaftBindAddr is the address raft's transport binds to for this
	// partition's single-node group.
	RaftBindAddr string `json:"raft_bind_addr,omitempty"`
	// RaftHeartbeatTimeoutMS is the raft heartbeat timeout, in milliseconds.
	RaftHeartbeatTimeoutMS int `json:"raft_heartbeat_timeout_ms,omitempty"`
}

// FlushSleep returns the configured flush interval as a time.Duration.
func (c Config) FlushSleep() time.Duration {
	return time.Duration(c.FlushSleepSec) * time.Second
}

// RaftHeartbeatTimeout returns the configured raft heartbeat timeout.
func (c Config) RaftHeartbeatTimeout() time.Duration {
	return time.Duration(c.RaftHeartbeatTimeoutMS) * time.Millisecond
}

// Default returns the engine's default configuration. DataDir is left
// empty; callers must set it (directly or via Load).
func Default() Config {
	return Config{
		FlushSleepSec:          3,
		LatchSlots:             50_000,
		ReadOnly:               false,
		RaftBindAddr:           "127.0.0.1:0",
		RaftHeartbeatTimeoutMS: 1000,
	}
}

// Load reads a JSON-with-comments config file at path and overlays it onto
// Default(). A missing file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid JSONC in %s: %w", path, err)
	}

	var overlay Config

	err = json.Unmarshal(standardized, &overlay)
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid JSON in %s: %w", path, err)
	}

	cfg = merge(cfg, overlay, standardized)

	return cfg, validate(cfg)
}

// merge overlays explicitly-set fields from overlay onto base. Zero-value
// scalars in overlay are ambiguous (unset vs. explicit zero) for ints and
// bools, so the raw JSON is consulted to tell the two cases apart.
func merge(base, overlay Config, rawJSON []byte) Config {
	var raw map[string]any

	_ = json.Unmarshal(rawJSON, &raw)

	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.RaftBindAddr != "" {
		base.RaftBindAddr = overlay.RaftBindAddr
	}

	if _, set := raw["flush_sleep_sec"]; set {
		base.FlushSleepSec = overlay.FlushSleepSec
	}

	if _, set := raw["latch_slots"]; set {
		base.LatchSlots = overlay.LatchSlots
	}

	if _, set := raw["readonly"]; set {
		base.ReadOnly = overlay.ReadOnly
	}

	if _, set := raw["raft_heartbeat_timeout_ms"]; set {
		base.RaftHeartbeatTimeoutMS = overlay.RaftHeartbeatTimeoutMS
	}

	return base
}

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrDataDirRequired
	}

	return nil
}

// PartitionDir derives the data directory for a single (collection,
// partition) pair under the configured base DataDir.
func (c Config) PartitionDir(collection string, partition uint32) string {
	return filepath.Join(c.DataDir, collection, fmt.Sprintf("p%04d", partition))
}
