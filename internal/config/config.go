// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package config defines the node's on-disk configuration and loads it
// with github.com/naoina/toml, present in the teacher's go.mod for this
// exact purpose (go-ethereum's TOML config file). Field names follow the
// teacher's lower_snake_case TOML convention.
package config

import (
	"os"
	"time"

	"github.com/naoina/toml"

	"github.com/equa-labs/poai-node/internal/poaierr"
)

// Config holds every consensus tunable from spec §6, plus the node's
// storage, network and logging settings.
type Config struct {
	DataDir     string `toml:"data_dir"`
	ListenAddr  string `toml:"listen_addr"`
	LogLevel    string `toml:"log_level"`

	VotingWindowSeconds  int     `toml:"voting_window_seconds"`
	MinVoters            int     `toml:"min_voters"`
	MinParticipation     float64 `toml:"min_participation"`
	Quorum               float64 `toml:"quorum"`
	VoteTimeoutSeconds   int     `toml:"vote_timeout_seconds"`

	BuilderTimeoutBlocks uint64 `toml:"builder_timeout_blocks"`

	AIThreshold     uint32 `toml:"ai_threshold"`
	MaxTxPerBlock   int    `toml:"max_tx_per_block"`
	MaxBlocksPerSync int   `toml:"max_blocks_per_sync"`

	CacheWindowSeconds  int `toml:"cache_window_seconds"`
	BlockCacheCapacity  int `toml:"block_cache_capacity"`
	TxCacheCapacity     int `toml:"tx_cache_capacity"`
	ColorCacheCapacity  int `toml:"color_cache_capacity"`

	MaxDriftSeconds   int    `toml:"max_drift_seconds"`
	BaseBlockReward   uint64 `toml:"base_block_reward"`
	TickIntervalSeconds int  `toml:"tick_interval_seconds"`

	MinThreshold  float64 `toml:"min_threshold"`
	MaxBlockSize  int     `toml:"max_block_size"`

	PeerResponseDeadlineSeconds int     `toml:"peer_response_deadline_seconds"`
	PeerMajority                float64 `toml:"peer_majority"`
}

// Default returns the spec §6 default tunables.
func Default() *Config {
	return &Config{
		DataDir:    "./data",
		ListenAddr: "127.0.0.1:30303",
		LogLevel:   "info",

		VotingWindowSeconds: 300,
		MinVoters:           5,
		MinParticipation:    0.60,
		Quorum:              0.67,
		VoteTimeoutSeconds:  30,

		BuilderTimeoutBlocks: 10,

		AIThreshold:      5,
		MaxTxPerBlock:    100,
		MaxBlocksPerSync: 100,

		CacheWindowSeconds: 3600,
		BlockCacheCapacity: 1000,
		TxCacheCapacity:    10000,
		ColorCacheCapacity: 1000,

		MaxDriftSeconds:     300,
		BaseBlockReward:     500000,
		TickIntervalSeconds: 5,

		MinThreshold: 0,
		MaxBlockSize: 1_000_000,

		PeerResponseDeadlineSeconds: 10,
		PeerMajority:                0.50,
	}
}

// Load reads and parses a TOML config file at path, starting from
// Default() so any field the file omits keeps its default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, poaierr.Wrap(poaierr.ErrStorageError, "read config %q: %v", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, poaierr.Wrap(poaierr.ErrInvalidBlock, "parse config %q: %v", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in TOML form, readable back with Load.
func Save(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// VotingWindow returns the voting window as a time.Duration.
func (c *Config) VotingWindow() time.Duration {
	return time.Duration(c.VotingWindowSeconds) * time.Second
}

// VoteTimeout returns the per-vote request timeout as a time.Duration.
func (c *Config) VoteTimeout() time.Duration {
	return time.Duration(c.VoteTimeoutSeconds) * time.Second
}

// CacheWindow returns the validation cache TTL as a time.Duration.
func (c *Config) CacheWindow() time.Duration {
	return time.Duration(c.CacheWindowSeconds) * time.Second
}

// TickInterval returns the engine tick interval as a time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// PeerResponseDeadline returns the peer validation response deadline as a
// time.Duration.
func (c *Config) PeerResponseDeadline() time.Duration {
	return time.Duration(c.PeerResponseDeadlineSeconds) * time.Second
}
