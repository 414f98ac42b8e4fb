// Command rolecalc-sandbox serves the local identity provider and the
// calculation/admin service on one port. One-time codes are written to the
// log instead of being delivered.
//
// Settings come from ROLECALC_SANDBOX_* variables, e.g.
// ROLECALC_SANDBOX_ADDR=127.0.0.1:8088 ROLECALC_SANDBOX_REDIS=mini.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/rolecalc/internal/logging"
	"github.com/MrEthical07/rolecalc/permission"
	"github.com/MrEthical07/rolecalc/sandbox"
)

type settings struct {
	Addr     string `default:"127.0.0.1:8088"`
	ClientID string `default:"rolecalc-local" split_words:"true"`
	// Redis is empty (no sign-in lockout), "mini" (in-process) or an address.
	Redis             string
	MaxSignInFailures int           `default:"5" split_words:"true"`
	LockoutWindow     time.Duration `default:"15m" split_words:"true"`
	RateLimit         int           `default:"120" split_words:"true"`
	TokenTTL          time.Duration `default:"1h" split_words:"true"`
	Seed              bool          `default:"true"`
	SeedPassword      string        `default:"correct-horse" split_words:"true"`
	Log               logging.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var s settings
	if err := envconfig.Process("ROLECALC_SANDBOX", &s); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	if s.Log.Format == "" {
		s.Log.Format = "text"
	}
	if s.Log.Output == "" {
		s.Log.Output = "stderr"
	}
	logger := logging.New(s.Log, "rolecalc-sandbox").Logger

	if err := serve(ctx, s, logger); err != nil {
		logger.Error("sandbox stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, s settings, logger *slog.Logger) error {
	rdb, closeRedis, err := openRedis(ctx, s.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	sb, err := sandbox.New(sandbox.Config{
		ClientID:          s.ClientID,
		TokenTTL:          s.TokenTTL,
		ProviderRateLimit: s.RateLimit,
		Redis:             rdb,
		MaxSignInFailures: s.MaxSignInFailures,
		LockoutWindow:     s.LockoutWindow,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	if s.Seed {
		if err := seed(sb, s.SeedPassword, logger); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	srv := &http.Server{
		Handler:           sb.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sandbox listening",
			slog.String("provider", "http://"+ln.Addr().String()+"/idp"),
			slog.String("api", "http://"+ln.Addr().String()+"/api/"),
			slog.String("client_id", s.ClientID),
		)
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("sandbox stopped")
	return nil
}

func openRedis(ctx context.Context, target string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	switch target {
	case "":
		return nil, func() {}, nil
	case "mini":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		logger.Info("sign-in lockout backed by in-process redis", slog.String("addr", mr.Addr()))
		return rdb, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	default:
		rdb := redis.NewClient(&redis.Options{Addr: target})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", slog.Any("error", err))
		}
		return rdb, func() { _ = rdb.Close() }, nil
	}
}

// seed adds one user per built-in role plus an SMS and a TOTP user.
func seed(sb *sandbox.Sandbox, pw string, logger *slog.Logger) error {
	users := []sandbox.UserSpec{
		{Username: "admin", Email: "admin@example.test", Groups: []string{permission.RoleAdmin}},
		{Username: "alice", Email: "alice@example.test", Groups: []string{permission.RoleAddSubtract}},
		{Username: "dana", Email: "dana@example.test", Groups: []string{permission.RoleDivideMultiply}},
		{Username: "ivy", Phone: "+14155550111", MFA: sandbox.MFASMS, Groups: []string{permission.RoleAddSubtract}},
		{Username: "jack", Email: "jack@example.test", MFA: sandbox.MFATOTP, Groups: []string{permission.RoleDivideMultiply}},
		{Username: "phone_14155550122", Phone: "+14155550122", Groups: []string{permission.RoleAddSubtract}},
	}
	for _, spec := range users {
		spec.Password = pw
		u, err := sb.AddUser(spec)
		if err != nil {
			return fmt.Errorf("seed %s: %w", spec.Username, err)
		}
		attrs := []any{slog.String("username", u.Username), slog.Any("groups", u.Groups)}
		if u.MFA == sandbox.MFATOTP {
			secret := sandbox.EncodeSecret(u.TOTPSecret)
			attrs = append(attrs, slog.String("totp_uri", sb.TOTP().ProvisionURI(secret, u.Username)))
		}
		logger.Info("seeded user", attrs...)
	}
	return nil
}
