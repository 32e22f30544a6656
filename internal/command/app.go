// Package command wires the swcache server: configuration, storage backend,
// codec, logging and the HTTP front.
package command

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/unkn0wn-root/swcache/internal/config"
)

const Name = "swcache"

// NewApp returns the root command. Flags take precedence over SWCACHE_*
// variables, which take precedence over the YAML file given by --config.
func NewApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   Name,
		Usage:  "precache an origin's app shell and serve it cache-first",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file",
				Sources: cli.NewValueSourceChain(cli.EnvVar(config.EnvPrefix + "CONFIG")),
			},
			&cli.StringFlag{Name: "origin", Usage: "origin base URL assets resolve against"},
			&cli.StringFlag{Name: "listen", Usage: "listen address"},
			&cli.StringFlag{Name: "backend", Usage: "storage backend: memory|bbolt|bigcache|ristretto|redis"},
			&cli.StringFlag{Name: "redis-addr", Usage: "redis address for the redis backend"},
			&cli.StringFlag{Name: "codec", Usage: "entry codec: json|cbor|msgpack|proto"},
			&cli.StringFlag{Name: "log-format", Usage: "logger: zap|logrus|slog|apex"},
			&cli.StringFlag{Name: "log-level", Usage: "debug|info|warn|error"},
			&cli.DurationFlag{Name: "timeout", Usage: "network timeout per request"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			srv, err := Build(ctx, cfg, cmd.ErrWriter)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
}

func resolveConfig(cmd *cli.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	overrides := []struct {
		flag string
		dst  *string
	}{
		{"origin", &cfg.Origin},
		{"listen", &cfg.Listen},
		{"backend", &cfg.Backend},
		{"redis-addr", &cfg.Redis.Addr},
		{"codec", &cfg.Codec},
		{"log-format", &cfg.Log.Format},
		{"log-level", &cfg.Log.Level},
	}
	for _, o := range overrides {
		if cmd.IsSet(o.flag) {
			*o.dst = cmd.String(o.flag)
		}
	}
	if cmd.IsSet("timeout") {
		cfg.Timeout = cmd.Duration("timeout")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ShutdownTimeout bounds graceful shutdown once the context is done.
var ShutdownTimeout = 10 * time.Second
