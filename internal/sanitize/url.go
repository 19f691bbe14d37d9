package sanitize

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// MaxURLLength caps webhook target URLs.
const MaxURLLength = 2048

// URLResult is the outcome of validating one outbound URL.
type URLResult struct {
	Valid      bool   `json:"valid"`
	Normalized string `json:"normalized,omitempty"`
	Err        string `json:"error,omitempty"`
}

// LocalEndpoint validates a self-hosted inference endpoint URL. Only
// loopback, RFC1918 private ranges, and the container-host alias are
// accepted; everything else is rejected with a reason. This gates
// setup-time outbound calls only. It is never applied to runtime input.
func LocalEndpoint(raw string) URLResult {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return URLResult{Err: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return URLResult{Err: "endpoint must use http or https"}
	}
	host := u.Hostname()
	if host == "" {
		return URLResult{Err: "endpoint has no host"}
	}

	if !isLocalHost(host) {
		return URLResult{Err: fmt.Sprintf("host %q is not a loopback or private address", host)}
	}

	return URLResult{Valid: true, Normalized: u.String()}
}

// WebhookURL validates an outward alert delivery target: https only, no
// loopback hosts, length capped.
func WebhookURL(raw string) URLResult {
	raw = strings.TrimSpace(raw)
	if len(raw) > MaxURLLength {
		return URLResult{Err: fmt.Sprintf("URL exceeds %d characters", MaxURLLength)}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return URLResult{Err: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "https" {
		return URLResult{Err: "webhook URL must use https"}
	}
	host := u.Hostname()
	if host == "" {
		return URLResult{Err: "webhook URL has no host"}
	}
	if isLoopback(host) {
		return URLResult{Err: "webhook URL must not point at a loopback host"}
	}

	return URLResult{Valid: true, Normalized: u.String()}
}

// isLocalHost reports whether a hostname resolves textually to loopback,
// a documented private range, or the Docker host alias. No DNS lookup is
// performed: a name that is not a literal address is rejected, which keeps
// the check deterministic and immune to rebinding.
func isLocalHost(host string) bool {
	if isLoopback(host) {
		return true
	}
	if host == "host.docker.internal" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsPrivate()
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
