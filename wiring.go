package sessionguard

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/jwt"
	"github.com/MrEthical07/sessionguard/session"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger writing to w at cfg.Level.
func NewLogger(cfg LogConfig, w io.Writer) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(w)
	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		level = parsed
	}
	l.SetLevel(level)
	if cfg.JSON {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

// OpenStore creates the session store cfg selects. The returned close
// function releases connections; it is never nil.
func OpenStore(ctx context.Context, cfg StorageConfig) (session.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case StorageMemory, "":
		return session.NewMemoryStore(), noop, nil
	case StorageFile:
		fs, err := session.NewFileStore(cfg.Path, []byte(cfg.Passphrase), session.DefaultSealConfig())
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case StorageRedis:
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "127.0.0.1:6379"
		}
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		rs := session.NewRedisStore(rdb, cfg.RedisPrefix, cfg.StorageKey, cfg.Retention)
		if _, err := rs.Ping(ctx); err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return rs, rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStorage, cfg.Kind)
	}
}

// NewAuthClient builds the backend client for cfg over store.
func NewAuthClient(cfg Config, store session.Store, logger logrus.FieldLogger) (*auth.Client, error) {
	var secret []byte
	if cfg.Backend.JWTSecret != "" {
		secret = []byte(cfg.Backend.JWTSecret)
	}
	tokens, err := jwt.NewManager(jwt.Config{Secret: secret})
	if err != nil {
		return nil, err
	}
	return auth.New(auth.Config{
		URL:                cfg.Backend.URL,
		AnonKey:            cfg.Backend.AnonKey,
		Store:              store,
		Tokens:             tokens,
		Logger:             logger,
		LockAcquireTimeout: cfg.Backend.LockAcquireTimeout,
		ExpiryMargin:       cfg.Backend.ExpiryMargin,
		AutoRefreshTick:    cfg.Backend.AutoRefreshTick,
	})
}
