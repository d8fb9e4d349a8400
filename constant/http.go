package constant

import "time"

// HeaderConstants defines HTTP header names used in requests and responses
const (
	// APIKeyHeader carries the key for the REST record store
	APIKeyHeader = "X-Api-Key"
	// ActivationStatusHeader reports the guard verdict: valid, offline or invalid
	ActivationStatusHeader = "X-Activation-Status"
	// ActivationExpiresHeader carries the activation expiry on accepted requests
	ActivationExpiresHeader = "X-Activation-Expires"
)

// TimeConstants defines timeout and interval values
const (
	// DefaultHTTPTimeoutSeconds is the default HTTP client timeout in seconds
	DefaultHTTPTimeoutSeconds = 5
	// DefaultRefreshIntervalHours is the default activation re-verification interval in hours
	DefaultRefreshIntervalHours = 6
	// PublicIPTimeout bounds each public IP echo request
	PublicIPTimeout = 2 * time.Second
	// LocalIPProbeTimeout bounds the UDP probe used to find the outbound address
	LocalIPProbeTimeout = 500 * time.Millisecond
)

// LocalIPProbeAddress is never contacted; dialing UDP only selects a route.
const LocalIPProbeAddress = "8.8.8.8:80"

// DefaultPublicIPEndpoints are tried in order until one answers
var DefaultPublicIPEndpoints = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
	"https://ipinfo.io/ip",
}

// NotAvailable is reported for device facts that could not be collected
const NotAvailable = "N/A"
