package zenodo

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Instances of the deposit service.
const (
	EnvProduction = "production"
	EnvSandbox    = "sandbox"

	ProductionURL = "https://zenodo.org"
	SandboxURL    = "https://sandbox.zenodo.org"
)

// BaseURLFor returns the instance URL for env. Anything other than
// "sandbox" selects production.
func BaseURLFor(env string) string {
	if env == EnvSandbox {
		return SandboxURL
	}
	return ProductionURL
}

// Config contains the connection settings for a Client.
type Config struct {
	// BaseURL is the instance root, e.g. "https://sandbox.zenodo.org".
	// The REST API is served under BaseURL + "/api".
	BaseURL string

	// Token is the personal access token sent as a Bearer credential.
	Token string

	// Timeout bounds each HTTP round trip. Zero means no timeout.
	Timeout time.Duration
}

// Validate checks that the configuration can be used to reach the service.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("zenodo: token is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("zenodo: base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("zenodo: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("zenodo: base url must use http or https scheme, got: %q", u.Scheme)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("zenodo: timeout must be non-negative, got: %v", c.Timeout)
	}
	return nil
}

// APIURL returns the REST API root.
func (c *Config) APIURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/api"
}

// NewHTTPClient creates the HTTP client used for API calls.
func (c *Config) NewHTTPClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}
