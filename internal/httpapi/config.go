package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr        = ":8080"
	defaultAllowedOrigin     = "http://localhost:8000"
	defaultSessionIssuer     = "tauth"
	defaultSessionCookie     = "app_session"
	defaultRequestTimeout    = 5 * time.Second
	defaultClaimsPerMinute   = 6.0
	defaultClaimBurst        = 3
	defaultTransactionsLimit = 20
	claimLimiterVisitorTTL   = 10 * time.Minute
	shutdownTimeout          = 5 * time.Second
)

const (
	errorCodeUnauthorized   = "unauthorized"
	errorCodeForbidden      = "forbidden"
	errorCodeInvalidPayload = "invalid_payload"
	errorCodeRateLimited    = "rate_limited"
	errorCodeInternal       = "internal_error"
	messageMissingSession   = "missing session"
	messageAdminRequired    = "admin access required"
	messageExpectedJSONBody = "expected JSON body"
	messageInternalFailure  = "request failed"
	messageTooManyClaims    = "too many upgrade requests, try again later"
)

// Config aggregates runtime settings for the HTTP API.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	AdminEmails       []string
	RequestTimeout    time.Duration
	ClaimsPerMinute   float64
	ClaimBurst        int
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ClaimsPerMinute <= 0 {
		cfg.ClaimsPerMinute = defaultClaimsPerMinute
	}
	if cfg.ClaimBurst <= 0 {
		cfg.ClaimBurst = defaultClaimBurst
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseList splits a comma-delimited flag value, dropping blanks.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
