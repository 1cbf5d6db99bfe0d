package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	valkeyRetries    = 3
	valkeyRetryDelay = 250 * time.Millisecond
)

// ValkeyOptions configures a Valkey connection.
type ValkeyOptions struct {
	Address  string
	Password string
	TLS      bool
}

// Valkey is a Cache backed by a Valkey (or Redis) server.
type Valkey struct {
	client valkey.Client
	logger *slog.Logger
}

// NewValkey connects and pings the server.
func NewValkey(ctx context.Context, opts ValkeyOptions, logger *slog.Logger) (*Valkey, error) {
	if logger == nil {
		logger = slog.Default()
	}

	clientOpts := valkey.ClientOption{
		InitAddress:      []string{opts.Address},
		Password:         opts.Password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey %s: %w", opts.Address, err)
	}

	logger.Info("connected to valkey", "address", opts.Address)
	return &Valkey{client: client, logger: logger.With("component", "cache")}, nil
}

func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	res := v.doWithRetry(ctx, v.client.B().Get().Key(key).Build())
	val, err := res.ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("valkey get %s: %w", key, err)
	}
	return val, true, nil
}

func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		secs := int64((ttl + time.Second - 1) / time.Second)
		cmd = v.client.B().Set().Key(key).Value(value).ExSeconds(secs).Build()
	} else {
		cmd = v.client.B().Set().Key(key).Value(value).Build()
	}
	if err := v.doWithRetry(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set %s: %w", key, err)
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

// doWithRetry retries only transport failures. Server replies, errors
// included, are returned as is. cmd is pinned so it survives each Do.
func (v *Valkey) doWithRetry(ctx context.Context, cmd valkey.Completed) valkey.ValkeyResult {
	cmd = cmd.Pin()
	var res valkey.ValkeyResult
	for i := 0; i < valkeyRetries; i++ {
		res = v.client.Do(ctx, cmd)
		err := res.NonValkeyError()
		if !retryable(err) {
			return res
		}

		v.logger.Warn("valkey command failed", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return res
		case <-time.After(valkeyRetryDelay):
		}
	}
	return res
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
