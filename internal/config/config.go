// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ReplicationMode selects how the issuer propagates credentials to the verifier.
type ReplicationMode string

const (
	// ReplicationOutbox queues each issuance in a durable outbox drained with retry.
	ReplicationOutbox ReplicationMode = "outbox"
	// ReplicationDirect pushes each issuance once from a background goroutine.
	ReplicationDirect ReplicationMode = "direct"
)

// Common holds settings shared by both services.
type Common struct {
	ListenAddr     string
	DBPath         string
	AllowedOrigins []string
	LogLevel       slog.Level
	LogFormat      string
}

// IssuerConfig is the issuer's configuration.
type IssuerConfig struct {
	Common
	PeerURL         string
	SyncTimeout     time.Duration
	ReplicationMode ReplicationMode
	OutboxInterval  time.Duration
	OutboxBatch     int
}

// HasPeer reports whether a verifier is configured for replication.
func (c *IssuerConfig) HasPeer() bool {
	return c.PeerURL != ""
}

// VerifierConfig is the verifier's configuration.
type VerifierConfig struct {
	Common
}

// LoadIssuer reads the issuer configuration. Defaults: CREDRELAY_LISTEN_ADDR
// (127.0.0.1:3001), CREDRELAY_DB_PATH (issuer.db), CREDRELAY_PEER_URL
// (http://127.0.0.1:3002, empty disables replication), CREDRELAY_SYNC_TIMEOUT
// (5s), CREDRELAY_REPLICATION_MODE (outbox), CREDRELAY_OUTBOX_INTERVAL (2s),
// CREDRELAY_OUTBOX_BATCH (100).
func LoadIssuer() (*IssuerConfig, error) {
	common, err := loadCommon("127.0.0.1:3001", "issuer.db")
	if err != nil {
		return nil, err
	}

	peerURL := "http://127.0.0.1:3002"
	if v, ok := os.LookupEnv("CREDRELAY_PEER_URL"); ok {
		peerURL = strings.TrimSpace(v)
	}

	syncTimeout, err := durationEnv("CREDRELAY_SYNC_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}

	mode := ReplicationOutbox
	if v, ok := os.LookupEnv("CREDRELAY_REPLICATION_MODE"); ok && v != "" {
		switch ReplicationMode(strings.ToLower(v)) {
		case ReplicationOutbox:
			mode = ReplicationOutbox
		case ReplicationDirect:
			mode = ReplicationDirect
		default:
			return nil, fmt.Errorf("CREDRELAY_REPLICATION_MODE must be outbox or direct, got %q", v)
		}
	}

	outboxInterval, err := durationEnv("CREDRELAY_OUTBOX_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, err
	}

	outboxBatch := 100
	if v, ok := os.LookupEnv("CREDRELAY_OUTBOX_BATCH"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("CREDRELAY_OUTBOX_BATCH must be a positive integer, got %q", v)
		}
		outboxBatch = parsed
	}

	return &IssuerConfig{
		Common:          common,
		PeerURL:         peerURL,
		SyncTimeout:     syncTimeout,
		ReplicationMode: mode,
		OutboxInterval:  outboxInterval,
		OutboxBatch:     outboxBatch,
	}, nil
}

// LoadVerifier reads the verifier configuration. Defaults:
// CREDRELAY_LISTEN_ADDR (127.0.0.1:3002), CREDRELAY_DB_PATH (verifier.db).
func LoadVerifier() (*VerifierConfig, error) {
	common, err := loadCommon("127.0.0.1:3002", "verifier.db")
	if err != nil {
		return nil, err
	}
	return &VerifierConfig{Common: common}, nil
}

func loadCommon(defaultAddr, defaultDB string) (Common, error) {
	listenAddr := defaultAddr
	if v, ok := os.LookupEnv("CREDRELAY_LISTEN_ADDR"); ok && v != "" {
		listenAddr = v
	}

	dbPath := defaultDB
	if v, ok := os.LookupEnv("CREDRELAY_DB_PATH"); ok && v != "" {
		dbPath = v
	}

	var origins []string
	if v, ok := os.LookupEnv("CREDRELAY_ALLOWED_ORIGINS"); ok && v != "" {
		for _, o := range strings.Split(v, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins = append(origins, o)
			}
		}
	}

	level := slog.LevelInfo
	if v, ok := os.LookupEnv("CREDRELAY_LOG_LEVEL"); ok && v != "" {
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return Common{}, fmt.Errorf("CREDRELAY_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	format := "text"
	if v, ok := os.LookupEnv("CREDRELAY_LOG_FORMAT"); ok && v != "" {
		format = strings.ToLower(v)
		if format != "text" && format != "json" {
			return Common{}, fmt.Errorf("CREDRELAY_LOG_FORMAT must be text or json, got %q", v)
		}
	}

	return Common{
		ListenAddr:     listenAddr,
		DBPath:         dbPath,
		AllowedOrigins: origins,
		LogLevel:       level,
		LogFormat:      format,
	}, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}

// NewLogger builds the process logger from the common settings.
func NewLogger(c Common, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
