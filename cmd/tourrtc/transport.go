package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/shynome/tourrtc/config"
	"github.com/shynome/tourrtc/signaler"
	"github.com/shynome/tourrtc/signaler/lens2"
	"github.com/shynome/tourrtc/signaler/redisps"
	"github.com/shynome/tourrtc/signaler/ws"
)

// newTransport builds the configured transport and what releases it.
func newTransport(ctx context.Context, cfg config.TransportConfig, logger *slog.Logger) (signaler.Transport, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Kind {
	case config.TransportSSE:
		opts := []lens2.Option{lens2.WithLogger(logger)}
		if cfg.Token != "" {
			opts = append(opts, lens2.WithToken(cfg.Token))
		}
		t, err := lens2.New(cfg.Endpoint, opts...)
		return t, nop, err
	case config.TransportWebSocket:
		opts := []ws.Option{ws.WithLogger(logger)}
		if cfg.Token != "" {
			opts = append(opts, ws.WithToken(cfg.Token))
		}
		t, err := ws.New(cfg.Endpoint, opts...)
		return t, nop, err
	case config.TransportRedis:
		client, err := redisps.Connect(ctx, &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisps.New(client, logger), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Kind)
}
