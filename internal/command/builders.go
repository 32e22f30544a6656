package command

import (
	"context"
	"fmt"
	"io"
	stdslog "log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/swcache"
	c "github.com/unkn0wn-root/swcache/codec"
	gen "github.com/unkn0wn-root/swcache/genstore"
	"github.com/unkn0wn-root/swcache/internal/config"
	apexlog "github.com/unkn0wn-root/swcache/log/apex"
	logruslog "github.com/unkn0wn-root/swcache/log/logrus"
	slogadapter "github.com/unkn0wn-root/swcache/log/slog"
	zaplog "github.com/unkn0wn-root/swcache/log/zap"
	pr "github.com/unkn0wn-root/swcache/provider"
	"github.com/unkn0wn-root/swcache/provider/bbolt"
	"github.com/unkn0wn-root/swcache/provider/bigcache"
	"github.com/unkn0wn-root/swcache/provider/memory"
	"github.com/unkn0wn-root/swcache/provider/redis"
	"github.com/unkn0wn-root/swcache/provider/ristretto"
)

const (
	redisGenNamespace = "swcache"
	ristrettoBuffer   = 64
	// headroom over the body limit for headers and codec overhead
	decodeHeadroom = 1 << 20
	defaultMaxBody = 64 << 20
)

// NewLogger builds the logger named by cfg.Format. flush writes out any
// buffered entries and is never nil.
func NewLogger(cfg config.Log, w io.Writer) (logger swcache.Logger, flush func(), err error) {
	flush = func() {}
	switch cfg.Format {
	case "zap":
		z, err := zaplog.New(w, cfg.Level)
		if err != nil {
			return nil, flush, err
		}
		return z, func() { _ = z.Sync() }, nil
	case "logrus":
		l, err := logruslog.New(w, cfg.Level)
		if err != nil {
			return nil, flush, err
		}
		return l, flush, nil
	case "apex":
		a, err := apexlog.New(w, cfg.Level)
		if err != nil {
			return nil, flush, err
		}
		return a, flush, nil
	case "slog":
		l, err := newSlog(w, cfg.Level)
		if err != nil {
			return nil, flush, err
		}
		return slogadapter.Logger{L: l}, flush, nil
	default:
		return nil, flush, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func newSlog(w io.Writer, level string) (*stdslog.Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: lvl})), nil
}

// NewRecordCodec returns the codec named by cfg.Codec, zstd-compressed when
// cfg.Compress is set.
func NewRecordCodec(cfg config.Config) (c.Codec[swcache.Record], error) {
	inner, err := NewCodec(cfg.Codec)
	if err != nil || !cfg.Compress {
		return inner, err
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return c.NewZstd(inner, uint64(2*maxBody+decodeHeadroom))
}

// NewCodec returns the entry codec named by name.
func NewCodec(name string) (c.Codec[swcache.Record], error) {
	switch name {
	case "json":
		return c.JSON[swcache.Record]{}, nil
	case "cbor":
		return c.NewCBOR[swcache.Record](true)
	case "msgpack":
		return c.Msgpack[swcache.Record]{}, nil
	case "proto":
		return c.Protobuf[swcache.Record, *swcache.Record]{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Storage is a provider plus, for shared and persistent backends, the
// generation store that must live next to it. GenStore is nil for in-process
// backends.
type Storage struct {
	Provider pr.Provider
	GenStore gen.GenStore
	Shared   bool
}

// NewStorage opens the backend named by cfg.Backend.
func NewStorage(ctx context.Context, cfg config.Config) (Storage, error) {
	switch cfg.Backend {
	case "memory":
		return Storage{Provider: memory.New()}, nil
	case "bbolt":
		p, err := bbolt.New(bbolt.Config{Path: cfg.Bbolt.Path, Timeout: cfg.Bbolt.Timeout})
		if err != nil {
			return Storage{}, err
		}
		return Storage{Provider: p, GenStore: p.Generations()}, nil
	case "bigcache":
		p, err := bigcache.New(ctx, bigcache.Config{
			Shards:             cfg.Bigcache.Shards,
			MaxEntrySize:       cfg.Bigcache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.Bigcache.HardMaxMB,
		})
		if err != nil {
			return Storage{}, fmt.Errorf("bigcache: %w", err)
		}
		return Storage{Provider: p}, nil
	case "ristretto":
		p, err := ristretto.New(ristretto.Config{
			NumCounters: cfg.Ristretto.NumCounters,
			MaxCost:     cfg.Ristretto.MaxCost,
			BufferItems: ristrettoBuffer,
		})
		if err != nil {
			return Storage{}, err
		}
		return Storage{Provider: p}, nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return Storage{}, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		// the generation store owns the client and closes it first
		p, err := redis.New(redis.Config{Client: rdb})
		if err != nil {
			_ = rdb.Close()
			return Storage{}, err
		}
		gs := gen.NewRedisGenStoreWithTTL(rdb, redisGenNamespace, cfg.Redis.GenTTL).OwnClient()
		return Storage{Provider: p, GenStore: gs, Shared: true}, nil
	default:
		return Storage{}, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// limitCodec caps decodes from shared backends, where other writers can
// put arbitrary bytes under our keys.
func limitCodec(inner c.Codec[swcache.Record], maxBody int64) c.Codec[swcache.Record] {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return c.Limit[swcache.Record]{Inner: inner, MaxDecode: int(2*maxBody) + decodeHeadroom}
}
