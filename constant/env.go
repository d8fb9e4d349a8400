package constant

// Environment variable names
const (
	EnvStore                = "ACTIVATION_STORE"
	EnvDataDir              = "ACTIVATION_DATA_DIR"
	EnvStatusFile           = "ACTIVATION_STATUS_FILE"
	EnvDeviceIDFile         = "DEVICE_ID_FILE"
	EnvFirestoreProjectID   = "FIRESTORE_PROJECT_ID"
	EnvFirestoreCredentials = "FIRESTORE_CREDENTIALS_FILE"
	EnvFirestoreCollection  = "FIRESTORE_COLLECTION"
	EnvRedisURL             = "REDIS_URL"
	EnvAPIURL               = "ACTIVATION_API_URL"
	EnvAPIKey               = "ACTIVATION_API_KEY"
	EnvRefreshInterval      = "ACTIVATION_REFRESH_INTERVAL"
	EnvStrictDeviceLimit    = "ACTIVATION_STRICT_DEVICE_LIMIT"
	EnvAttemptsPerMinute    = "ACTIVATION_ATTEMPTS_PER_MINUTE"
	EnvPublicIPEndpoints    = "PUBLIC_IP_ENDPOINTS"
)

// Store backend names accepted by EnvStore
const (
	StoreFirestore = "firestore"
	StoreRedis     = "redis"
	StoreREST      = "rest"
	StoreMemory    = "memory"
)

// DefaultCollection is the remote collection holding activation codes
const DefaultCollection = "activation_codes"
