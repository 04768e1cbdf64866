package config

import "time"

// ServerConfig is the root configuration for lime-server.
type ServerConfig struct {
	Node     NodeSection     `koanf:"node"`
	Server   ServerSection   `koanf:"server"`
	Session  SessionSection  `koanf:"session"`
	Bridge   BridgeSection   `koanf:"bridge"`
	Security SecuritySection `koanf:"security"`
	Storage  StorageSection  `koanf:"storage"`
	Log      LogSection      `koanf:"log"`
}

// NodeSection identifies the server node.
type NodeSection struct {
	// Address is the server node, e.g. "postmaster@lime.local/server".
	// Guests and identities without a domain get its domain.
	Address string `koanf:"address"`
}

// ServerSection configures the listeners.
type ServerSection struct {
	TCP  TCPConfig  `koanf:"tcp"`
	HTTP HTTPConfig `koanf:"http"`
}

// TCPConfig configures the TCP transport listener.
type TCPConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr"`
	TLSCertFile  string        `koanf:"tls_cert_file"`
	TLSKeyFile   string        `koanf:"tls_key_file"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// HTTPConfig configures the HTTP session bridge.
type HTTPConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Addr           string        `koanf:"addr"`
	TLSCertFile    string        `koanf:"tls_cert_file"`
	TLSKeyFile     string        `koanf:"tls_key_file"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`

	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// MetricsAllowList restricts /metrics to these IPs or CIDRs.
	MetricsAllowList []string `koanf:"metrics_allow_list"`

	EnableAudit bool `koanf:"enable_audit"`
}

// SessionSection configures session channels.
type SessionSection struct {
	SendTimeout       time.Duration `koanf:"send_timeout"`
	ReceiveBuffer     int           `koanf:"receive_buffer"`
	MaxAuthRoundtrips int           `koanf:"max_auth_roundtrips"`
	GlobalCommandLock bool          `koanf:"global_command_lock"`
	FinishTimeout     time.Duration `koanf:"finish_timeout"`

	// Compression and Encryption are offered during negotiation.
	Compression []string `koanf:"compression"`
	Encryption  []string `koanf:"encryption"`
}

// BridgeSection configures HTTP session transports.
type BridgeSection struct {
	SessionTTL            time.Duration `koanf:"session_ttl"`
	SweepInterval         time.Duration `koanf:"sweep_interval"`
	AuthenticationTimeout time.Duration `koanf:"authentication_timeout"`
	MaxStoredEnvelopes    int           `koanf:"max_stored_envelopes"`
}

// SecuritySection configures authentication.
type SecuritySection struct {
	// Schemes offered to clients, in order.
	Schemes []string `koanf:"schemes"`

	// Users maps identities (name@domain) to Argon2id password hashes.
	Users map[string]string `koanf:"users"`

	// AllowGuest lets HTTP requests without credentials in as guests.
	AllowGuest bool `koanf:"allow_guest"`

	JWTSecret   string        `koanf:"jwt_secret"`
	JWKSURL     string        `koanf:"jwks_url"`
	JWTIssuer   string        `koanf:"jwt_issuer"`
	JWTAudience string        `koanf:"jwt_audience"`
	JWTLeeway   time.Duration `koanf:"jwt_leeway"`
}

// StorageSection configures the resource store used by commands.
type StorageSection struct {
	// Type is one of memory, badger or redis.
	Type string `koanf:"type"`

	Badger BadgerConfig `koanf:"badger"`
	Redis  RedisConfig  `koanf:"redis"`
}

// BadgerConfig configures the Badger store.
type BadgerConfig struct {
	Dir        string        `koanf:"dir"`
	GCInterval time.Duration `koanf:"gc_interval"`
	SyncWrites bool          `koanf:"sync_writes"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr      string        `koanf:"addr"`
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	DB        int           `koanf:"db"`
	KeyPrefix string        `koanf:"key_prefix"`
	TTL       time.Duration `koanf:"ttl"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
