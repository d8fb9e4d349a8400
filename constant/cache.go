package constant

import "time"

// Verdict cache configuration constants
const (
	// CacheTTL defines how long a verdict is trusted before a request guard re-verifies
	CacheTTL = 1 * time.Hour
	// CacheNumCounters is the number of keys to track frequency
	CacheNumCounters = 1e4
	// CacheMaxCost is the maximum cost of cache
	CacheMaxCost = 1 << 20
	// CacheBufferItems is the number of keys per Get buffer
	CacheBufferItems = 64
)

// Local file names, relative to the data directory
const (
	// DefaultDataDirName is the directory created under the user config dir
	DefaultDataDirName = "activation"
	// DefaultStatusFileName holds the last known-good activation
	DefaultStatusFileName = "activation_status.json"
	// DefaultDeviceIDFileName holds the generated device identifier
	DefaultDeviceIDFileName = "device_id.txt"
)
