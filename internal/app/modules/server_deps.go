package modules

import (
	"strings"
	"time"

	"fieldops.io/fieldops/internal/api/handlers"
	"fieldops.io/fieldops/internal/api/middleware"
	"fieldops.io/fieldops/internal/config"
)

// ServiceTokenLifetime bounds tokens minted with the session secret.
const ServiceTokenLifetime = 15 * time.Minute

// NewServerDeps lets each module contribute its handler dependencies.
func NewServerDeps(mods []Module) handlers.ServerDeps {
	var deps handlers.ServerDeps
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// JWTConfig builds the token settings shared by the API and cmd/notify-cron.
func JWTConfig(cfg config.SecurityConfig) middleware.JWTConfig {
	verificationKeys := make([][]byte, 0, len(cfg.JWTVerificationKeys))
	for _, key := range cfg.JWTVerificationKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		verificationKeys = append(verificationKeys, []byte(key))
	}
	return middleware.JWTConfig{
		SigningKey:       []byte(cfg.SessionSecret),
		VerificationKeys: verificationKeys,
		Issuer:           cfg.JWTIssuer,
		ExpiresIn:        ServiceTokenLifetime,
	}
}
