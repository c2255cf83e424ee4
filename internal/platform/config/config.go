package config

import (
	"os"
	"time"
)

// Guard captures configuration for the session guard and the storefront shell.
type Guard struct {
	// Addr is the listen address of the storefront shell.
	Addr string
	// BackendBaseURL is the base URL of the storefront REST backend.
	BackendBaseURL string
	// LoginPath is the entry view unauthenticated traffic is redirected to.
	LoginPath string
	// CredentialPath is the file holding the persisted bearer credential.
	// Empty means the credential is kept in memory only.
	CredentialPath string
	// HTTPTimeout bounds every outbound backend call.
	HTTPTimeout time.Duration
	// RevalidateInterval is the period of the background session re-check.
	RevalidateInterval time.Duration
}

var (
	defaultHTTPTimeout        = 10 * time.Second
	defaultRevalidateInterval = 5 * time.Minute
)

// FromEnv builds a Guard config from environment variables so main stays lean.
func FromEnv() Guard {
	addr := os.Getenv("STOREFRONT_ADDR")
	if addr == "" {
		addr = ":3000"
	}

	backendURL := os.Getenv("STOREFRONT_API_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8080"
	}

	loginPath := os.Getenv("STOREFRONT_LOGIN_PATH")
	if loginPath == "" {
		loginPath = "/login"
	}

	httpTimeout := defaultHTTPTimeout
	if s := os.Getenv("STOREFRONT_HTTP_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			httpTimeout = d
		}
	}

	revalidate := defaultRevalidateInterval
	if s := os.Getenv("STOREFRONT_REVALIDATE_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			revalidate = d
		}
	}

	return Guard{
		Addr:               addr,
		BackendBaseURL:     backendURL,
		LoginPath:          loginPath,
		CredentialPath:     os.Getenv("STOREFRONT_CREDENTIAL_PATH"),
		HTTPTimeout:        httpTimeout,
		RevalidateInterval: revalidate,
	}
}
