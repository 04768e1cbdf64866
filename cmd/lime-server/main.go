package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/lime-go/internal/core/channel"
	"github.com/yndnr/lime-go/internal/core/domain"
	"github.com/yndnr/lime-go/internal/core/service"
	"github.com/yndnr/lime-go/internal/infra/buildinfo"
	"github.com/yndnr/lime-go/internal/infra/confloader"
	"github.com/yndnr/lime-go/internal/infra/shutdown"
	"github.com/yndnr/lime-go/internal/infra/tlsroots"
	"github.com/yndnr/lime-go/internal/server/config"
	"github.com/yndnr/lime-go/internal/server/httpbridge"
	"github.com/yndnr/lime-go/internal/server/httpserver"
	"github.com/yndnr/lime-go/internal/storage"
	"github.com/yndnr/lime-go/internal/storage/memory"
	"github.com/yndnr/lime-go/internal/telemetry/logger"
	"github.com/yndnr/lime-go/internal/telemetry/metric"
	"github.com/yndnr/lime-go/internal/transport"
	"github.com/yndnr/lime-go/internal/transport/tcp"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "lime-server",
		Usage:   "LIME server node",
		Version: buildinfo.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file (YAML or TOML)",
				EnvVars: []string{"LIME_CONFIG"},
			},
			&cli.StringFlag{Name: "tcp-addr", Usage: "TCP listen address (server.tcp.addr)"},
			&cli.StringFlag{Name: "http-addr", Usage: "HTTP listen address (server.http.addr)"},
			&cli.StringFlag{Name: "storage", Usage: "Resource storage: memory, badger, redis (storage.type)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level (log.level)"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:      "hash-password",
				Usage:     "Print the hash of a password for security.users",
				ArgsUsage: "[PASSWORD]",
				Action:    hashPassword,
			},
			{
				Name:  "check-config",
				Usage: "Validate the configuration and print it with secrets masked",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c.String("config"), flagOverrides(c))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "%+v\n", *config.Sanitize(cfg))
					return nil
				},
			},
		},
	}
}

// flagOverrides maps the flags given on the command line to config keys.
func flagOverrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"tcp-addr":  "server.tcp.addr",
		"http-addr": "server.http.addr",
		"storage":   "storage.type",
		"log-level": "log.level",
	}
	out := make(map[string]any)
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	return out
}

func run(c *cli.Context) error {
	configFile := c.String("config")
	cfg, err := loadConfig(configFile, flagOverrides(c))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	slogLogger := log.Slog()
	log.Info("starting lime-server", "version", buildinfo.Get().Version, "config", configFile)
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", *config.Sanitize(cfg)))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	metrics := metric.NewRegistry()
	store, err := initStorage(ctx, cfg, slogLogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	auth, router, err := initRouter(cfg, store, slogLogger, metrics)
	if err != nil {
		store.Close()
		return fmt.Errorf("init router: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(30 * time.Second).WithLogger(slogLogger)
	shutdownHandler.OnShutdown("storage", func(context.Context) error {
		return store.Close()
	})

	listeners, err := initListeners(ctx, cfg, slogLogger, metrics)
	if err != nil {
		_ = shutdownHandler.Shutdown()
		return err
	}

	var serving sync.WaitGroup
	for name, l := range listeners {
		if err := l.Start(ctx); err != nil {
			cancel()
			serving.Wait()
			_ = shutdownHandler.Shutdown()
			return fmt.Errorf("start %s listener: %w", name, err)
		}
		serving.Add(1)
		go func() {
			defer serving.Done()
			if err := router.Serve(ctx, l); err != nil {
				log.Error("listener failed", "listener", name, "error", err)
			}
		}()
		shutdownHandler.OnShutdown(name+" listener", l.Stop)
	}

	// Registered last so it runs first: sessions finish before the
	// listeners and the storage go away.
	shutdownHandler.OnShutdown("sessions", func(ctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			serving.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if configFile != "" {
		watcher, err := watchConfig(configFile, flagOverrides(c), auth, slogLogger)
		if err != nil {
			log.Warn("configuration reload disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config watcher", func(context.Context) error { return watcher.Stop() })
		}
	}

	log.Info("server started, press Ctrl+C to stop", "node", router.Node().String())
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// loadConfig layers defaults, the file, LIME_ environment variables and
// flag overrides, then verifies the result.
func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

func initStorage(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (storage.ResourceStore, error) {
	switch cfg.Storage.Type {
	case config.StorageBadger:
		badgerCfg := storage.DefaultBadgerConfig(cfg.Storage.Badger.Dir)
		if cfg.Storage.Badger.GCInterval > 0 {
			badgerCfg.GCInterval = cfg.Storage.Badger.GCInterval
		}
		badgerCfg.SyncWrites = cfg.Storage.Badger.SyncWrites
		s, err := storage.NewBadgerStore(badgerCfg, log)
		if err != nil {
			return nil, err
		}
		return s.RegisterMetrics(metrics.Registerer()), nil
	case config.StorageRedis:
		r := cfg.Storage.Redis
		return storage.NewRedisStore(ctx, storage.RedisConfig{
			Addr:      r.Addr,
			Username:  r.Username,
			Password:  r.Password,
			DB:        r.DB,
			KeyPrefix: r.KeyPrefix,
			TTL:       r.TTL,
		})
	default:
		return memory.New(), nil
	}
}

func initRouter(cfg *config.ServerConfig, store storage.ResourceStore, log *slog.Logger, metrics *metric.Registry) (*service.Authenticator, *service.Router, error) {
	node, err := domain.ParseNode(cfg.Node.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("node.address: %w", err)
	}

	schemes := make([]domain.AuthenticationScheme, 0, len(cfg.Security.Schemes))
	for _, s := range cfg.Security.Schemes {
		schemes = append(schemes, domain.AuthenticationScheme(s))
	}
	auth := service.NewAuthenticator(service.AuthConfig{
		Domain:  node.Domain,
		Schemes: schemes,
		Users:   cfg.Security.Users,
	})

	compression := make([]domain.SessionCompression, 0, len(cfg.Session.Compression))
	for _, c := range cfg.Session.Compression {
		compression = append(compression, domain.SessionCompression(c))
	}
	encryption := make([]domain.SessionEncryption, 0, len(cfg.Session.Encryption))
	for _, e := range cfg.Session.Encryption {
		encryption = append(encryption, domain.SessionEncryption(e))
	}

	router := service.NewRouter(service.RouterConfig{
		Node:          node,
		Compression:   compression,
		Encryption:    encryption,
		FinishTimeout: cfg.Session.FinishTimeout,
		Channel:       channelConfig(cfg, log, metrics),
		Logger:        log,
		Metrics:       metrics,
	}, auth, store)
	return auth, router, nil
}

func channelConfig(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) channel.Config {
	return channel.Config{
		SendTimeout:                 cfg.Session.SendTimeout,
		ReceiveBuffer:               cfg.Session.ReceiveBuffer,
		MaxAuthenticationRoundtrips: cfg.Session.MaxAuthRoundtrips,
		GlobalCommandLock:           cfg.Session.GlobalCommandLock,
		OnDrop: func(kind domain.Kind) {
			metrics.RecordEnvelope(kind.String(), "dropped")
		},
		Logger: log,
	}
}

// initListeners builds the enabled TCP listener and HTTP bridge. Neither is
// started.
func initListeners(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (map[string]transport.Listener, error) {
	listeners := make(map[string]transport.Listener)

	if tcpCfg := cfg.Server.TCP; tcpCfg.Enabled {
		lc := tcp.DefaultConfig()
		lc.Address = tcpCfg.Addr
		if tcpCfg.WriteTimeout > 0 {
			lc.WriteTimeout = tcpCfg.WriteTimeout
		}
		if tcpCfg.TLSCertFile != "" {
			cert, err := watchedCertificate(ctx, tcpCfg.TLSCertFile, tcpCfg.TLSKeyFile, log)
			if err != nil {
				return nil, fmt.Errorf("tcp tls: %w", err)
			}
			lc.TLSConfig = cert.ServerConfig()
		}
		listeners["tcp"] = tcp.NewListener(lc, log)
	}

	if httpCfg := cfg.Server.HTTP; httpCfg.Enabled {
		node, err := domain.ParseNode(cfg.Node.Address)
		if err != nil {
			return nil, err
		}
		resolver, err := httpserver.NewPrincipalResolver(ctx, httpserver.PrincipalConfig{
			Domain:     node.Domain,
			AllowGuest: cfg.Security.AllowGuest,
			JWTSecret:  cfg.Security.JWTSecret,
			JWKSURL:    cfg.Security.JWKSURL,
			Issuer:     cfg.Security.JWTIssuer,
			Audience:   cfg.Security.JWTAudience,
			Leeway:     cfg.Security.JWTLeeway,
		})
		if err != nil {
			return nil, fmt.Errorf("http principals: %w", err)
		}

		srvCfg := httpserver.Config{
			Addr:               httpCfg.Addr,
			RequestTimeout:     httpCfg.RequestTimeout,
			MaxBodyBytes:       httpCfg.MaxBodyBytes,
			RateLimit:          httpCfg.RateLimit,
			RateBurst:          httpCfg.RateBurst,
			CORSAllowedOrigins: httpCfg.CORSAllowedOrigins,
			MetricsAllowList:   httpCfg.MetricsAllowList,
			EnableAudit:        httpCfg.EnableAudit,
			Logger:             log,
			Metrics:            metrics,
		}
		if httpCfg.TLSCertFile != "" {
			cert, err := watchedCertificate(ctx, httpCfg.TLSCertFile, httpCfg.TLSKeyFile, log)
			if err != nil {
				return nil, fmt.Errorf("http tls: %w", err)
			}
			srvCfg.TLSConfig = cert.ServerConfig()
		}

		sessions := httpbridge.NewSessionRegistry(httpbridge.SessionConfig{
			TTL:                   cfg.Bridge.SessionTTL,
			AuthenticationTimeout: cfg.Bridge.AuthenticationTimeout,
			FinishTimeout:         cfg.Session.FinishTimeout,
			MaxStoredEnvelopes:    cfg.Bridge.MaxStoredEnvelopes,
			Channel:               channelConfig(cfg, log, metrics),
		}, log, metrics)

		listeners["http"] = httpbridge.New(httpbridge.Config{
			RequestTimeout: httpCfg.RequestTimeout,
			SweepInterval:  cfg.Bridge.SweepInterval,
			Logger:         log,
			Metrics:        metrics,
		}, httpserver.New(srvCfg, resolver), sessions, httpbridge.NewDefaultRegistry())
	}

	if len(listeners) == 0 {
		return nil, errors.New("no listener enabled")
	}
	return listeners, nil
}

// watchedCertificate loads a key pair and reloads it when the files change.
func watchedCertificate(ctx context.Context, certFile, keyFile string, log *slog.Logger) (*tlsroots.Certificate, error) {
	cert, err := tlsroots.LoadCertificate(certFile, keyFile, tlsroots.WithLogger(log))
	if err != nil {
		return nil, err
	}
	go func() {
		if err := cert.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("certificate reload disabled", "cert", certFile, "error", err)
		}
	}()
	return cert, nil
}

// watchConfig applies the log level and the user table of the file
// whenever it changes. Other settings need a restart.
func watchConfig(configFile string, overrides map[string]any, auth *service.Authenticator, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(configFile); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(configFile, overrides)
		if err != nil {
			log.Error("configuration reload failed", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		for identity, hash := range cfg.Security.Users {
			auth.SetUser(identity, hash)
		}
		log.Info("configuration reloaded", "log_level", cfg.Log.Level, "users", len(cfg.Security.Users))
	})
	w.StartAsync()
	return w, nil
}

func hashPassword(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		in := c.App.Reader
		if in == nil {
			in = os.Stdin
		}
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password required")
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}
