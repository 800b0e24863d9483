package main

import (
	"log/slog"
	"slices"

	"github.com/guilhermesalviano/bbcat/internal/config"
)

const minJWTSecretLen = 32

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.AuthMode == config.AuthModeJWT && len(cfg.JWTSecret) < minJWTSecretLen {
		logger.Warn("startup security warning: JWT_SECRET is shorter than 32 bytes (HS256 keys should be at least as long as the hash)",
			"warning_code", "jwt_secret_short",
			"jwt_secret_len", len(cfg.JWTSecret),
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode != config.ModeProd {
		return
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none disables signaling authentication while --mode=prod",
			"warning_code", "auth_mode_none_in_prod",
			"auth_mode", cfg.AuthMode,
			"mode", cfg.Mode,
		)
	}

	if !cfg.TLSEnabled() {
		logger.Warn("startup security warning: serving plaintext HTTP while --mode=prod (set TLS_CERT_FILE and TLS_KEY_FILE or terminate TLS in front)",
			"warning_code", "plaintext_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.UpstreamURL != nil && cfg.UpstreamURL.User != nil {
		logger.Warn("startup security warning: MJPEG_URL embeds credentials; they are sent to the camera on every request",
			"warning_code", "upstream_url_credentials",
			"upstream_host", cfg.UpstreamURL.Host,
			"mode", cfg.Mode,
		)
	}
}
