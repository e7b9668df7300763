// tourrtc-relay serves the broadcast channels peers signal through.
//
// With --issue it prints a token for the named participant and exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/tourrtc/config"
	"github.com/shynome/tourrtc/relay"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	defer err2.Handle(&err)

	flags := pflag.NewFlagSet("tourrtc-relay", pflag.ContinueOnError)
	configPath := flags.String("config", "", "config file (default: $TOURRTC_CONFIG)")
	listen := flags.String("listen", "", "listen address (overrides relay.listen)")
	issue := flags.String("issue", "", "print a token for this participant id and exit")
	ttl := flags.Duration("ttl", 24*time.Hour, "lifetime of tokens printed by --issue")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := try.To1(config.Load(*configPath))
	if *listen != "" {
		cfg.Relay.Listen = *listen
	}

	if *issue != "" {
		if cfg.Relay.JWTSecret == "" {
			return errors.New("relay.jwt_secret (or TOURRTC_JWT_SECRET) is required to issue tokens")
		}
		fmt.Println(try.To1(relay.IssueToken(cfg.Relay.JWTSecret, *issue, *ttl)))
		return nil
	}

	logger := cfg.Log.Logger(os.Stderr)
	if cfg.Relay.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Relay.JWTSecret == "" {
		logger.Warn("no jwt secret configured, channels are open to anyone")
	}

	r := relay.New(relay.Options{
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		JWTSecret:      cfg.Relay.JWTSecret,
	}, logger)
	srv := &http.Server{
		Addr:              cfg.Relay.Listen,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		r.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("relay listening", "addr", cfg.Relay.Listen)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
