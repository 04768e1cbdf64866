package config

import (
	"maps"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg

	if sanitized.Security.JWTSecret != "" {
		sanitized.Security.JWTSecret = maskSecret(sanitized.Security.JWTSecret)
	}
	if sanitized.Storage.Redis.Password != "" {
		sanitized.Storage.Redis.Password = maskSecret(sanitized.Storage.Redis.Password)
	}
	if len(cfg.Security.Users) > 0 {
		users := maps.Clone(cfg.Security.Users)
		for identity := range users {
			users[identity] = "****"
		}
		sanitized.Security.Users = users
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
