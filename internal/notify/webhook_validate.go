package notify

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// allowedWebhookHosts are the hosts (or parent domains) a per-project
// webhook URL override may target.
var allowedWebhookHosts = []string{"discord.com", "discordapp.com"}

// ValidateWebhookURL is a pure function of raw: no network access, no
// clock, no randomness. It returns a distinct error for each rejection
// reason so callers and tests can distinguish them.
func ValidateWebhookURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("webhook url: empty")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("webhook url: not a valid url")
	}
	if u.Scheme != "https" {
		return fmt.Errorf("webhook url: scheme must be https, got %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return fmt.Errorf("webhook url: host must not be a literal IP")
	}
	if host == "localhost" {
		return fmt.Errorf("webhook url: host must not be localhost")
	}

	allowedHost := false
	for _, allowed := range allowedWebhookHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			allowedHost = true
			break
		}
	}
	if !allowedHost {
		return fmt.Errorf("webhook url: host %q is not in the allowlist", host)
	}

	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		return fmt.Errorf("webhook url: path must begin with /api/webhooks/, got %q", u.Path)
	}
	return nil
}

// resolveWebhookURL returns the per-project override when it validates,
// otherwise the global URL. A failed override is logged by the caller, not
// treated as a request failure.
func resolveWebhookURL(global, override string) (url string, overrideRejected bool) {
	if override == "" {
		return global, false
	}
	if err := ValidateWebhookURL(override); err != nil {
		return global, true
	}
	return override, false
}
