package config

import "time"

// Default configuration values.
const (
	DefaultNodeAddress = "postmaster@lime.local/server"

	DefaultTCPAddr      = "127.0.0.1:55321"
	DefaultTCPWriteTime = 30 * time.Second
	DefaultHTTPAddr     = "127.0.0.1:8080"

	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxBodyBytes   = 1 << 20

	DefaultSendTimeout       = 60 * time.Second
	DefaultReceiveBuffer     = 64
	DefaultMaxAuthRoundtrips = 3
	DefaultFinishTimeout     = 5 * time.Second

	DefaultSessionTTL            = 180 * time.Second
	DefaultSweepInterval         = 30 * time.Second
	DefaultAuthenticationTimeout = 30 * time.Second
	DefaultMaxStoredEnvelopes    = 1024

	DefaultStorageType      = StorageMemory
	DefaultBadgerDir        = "/var/lib/lime-server/data"
	DefaultBadgerGCInterval = 10 * time.Minute
	DefaultRedisKeyPrefix   = "lime:"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Storage types.
const (
	StorageMemory = "memory"
	StorageBadger = "badger"
	StorageRedis  = "redis"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Node: NodeSection{
			Address: DefaultNodeAddress,
		},
		Server: ServerSection{
			TCP: TCPConfig{
				Enabled:      true,
				Addr:         DefaultTCPAddr,
				WriteTimeout: DefaultTCPWriteTime,
			},
			HTTP: HTTPConfig{
				Enabled:        true,
				Addr:           DefaultHTTPAddr,
				RequestTimeout: DefaultRequestTimeout,
				MaxBodyBytes:   DefaultMaxBodyBytes,
			},
		},
		Session: SessionSection{
			SendTimeout:       DefaultSendTimeout,
			ReceiveBuffer:     DefaultReceiveBuffer,
			MaxAuthRoundtrips: DefaultMaxAuthRoundtrips,
			FinishTimeout:     DefaultFinishTimeout,
			Compression:       []string{"none"},
			Encryption:        []string{"none"},
		},
		Bridge: BridgeSection{
			SessionTTL:            DefaultSessionTTL,
			SweepInterval:         DefaultSweepInterval,
			AuthenticationTimeout: DefaultAuthenticationTimeout,
			MaxStoredEnvelopes:    DefaultMaxStoredEnvelopes,
		},
		Security: SecuritySection{
			Schemes: []string{"guest", "plain", "transport"},
		},
		Storage: StorageSection{
			Type: DefaultStorageType,
			Badger: BadgerConfig{
				Dir:        DefaultBadgerDir,
				GCInterval: DefaultBadgerGCInterval,
			},
			Redis: RedisConfig{
				KeyPrefix: DefaultRedisKeyPrefix,
			},
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
