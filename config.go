package sdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/LerianStudio/lib-activation-go/activation"
	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/internal/config"
	"github.com/LerianStudio/lib-activation-go/pkg"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-activation-go/store/firestore"
	"github.com/LerianStudio/lib-activation-go/store/memory"
	"github.com/LerianStudio/lib-activation-go/store/redis"
	"github.com/LerianStudio/lib-activation-go/store/rest"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/LerianStudio/lib-commons/commons/zap"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ErrUnknownStore is returned for an unsupported ACTIVATION_STORE value.
var ErrUnknownStore = errors.New("unknown activation store")

// Config holds runtime configuration read from the environment.
type Config struct {
	Store        string `envconfig:"ACTIVATION_STORE" default:"firestore"`
	DataDir      string `envconfig:"ACTIVATION_DATA_DIR"`
	StatusFile   string `envconfig:"ACTIVATION_STATUS_FILE"`
	DeviceIDFile string `envconfig:"DEVICE_ID_FILE"`

	FirestoreProjectID   string `envconfig:"FIRESTORE_PROJECT_ID"`
	FirestoreCredentials string `envconfig:"FIRESTORE_CREDENTIALS_FILE"`
	Collection           string `envconfig:"FIRESTORE_COLLECTION" default:"activation_codes"`

	RedisURL string `envconfig:"REDIS_URL"`

	APIURL string `envconfig:"ACTIVATION_API_URL"`
	APIKey string `envconfig:"ACTIVATION_API_KEY"`

	RefreshInterval   time.Duration `envconfig:"ACTIVATION_REFRESH_INTERVAL" default:"6h"`
	StrictDeviceLimit bool          `envconfig:"ACTIVATION_STRICT_DEVICE_LIMIT"`
	AttemptsPerMinute int           `envconfig:"ACTIVATION_ATTEMPTS_PER_MINUTE" default:"0"`
	PublicIPEndpoints string        `envconfig:"PUBLIC_IP_ENDPOINTS"`
}

// LoadFromEnv builds the Config from the environment, after loading a .env
// file from the working directory when one exists.
func LoadFromEnv() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load activation config: %w", err)
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	return cfg, nil
}

// ToClientConfig resolves file locations and policies into a ClientConfig.
func (c Config) ToClientConfig() config.ClientConfig {
	dir := c.DataDir
	if dir == "" {
		dir = config.DefaultDataDir()
	}

	cc := config.NewConfigForDir(dir)

	if c.StatusFile != "" {
		cc.StatusFile = c.StatusFile
	}

	if c.DeviceIDFile != "" {
		cc.DeviceIDFile = c.DeviceIDFile
	}

	if c.RefreshInterval > 0 {
		cc.RefreshInterval = c.RefreshInterval
	}

	if endpoints := pkg.ParseList(c.PublicIPEndpoints); len(endpoints) > 0 {
		cc.PublicIPEndpoints = endpoints
	}

	cc.StrictDeviceLimit = c.StrictDeviceLimit
	cc.AttemptsPerMinute = c.AttemptsPerMinute

	return cc
}

// OpenStore connects the configured backend. A backend whose settings are
// missing yields a nil store: the coordinator then reports
// constant.ErrNotInitialized for remote operations and verifies offline.
// The returned closer releases the backend and is never nil.
func OpenStore(ctx context.Context, cfg Config, logger log.Logger) (store.RecordStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case cn.StoreMemory:
		logger.Warn("Using the in-memory activation store, records do not survive restarts")
		return memory.New(), noop, nil

	case cn.StoreRedis:
		if cfg.RedisURL == "" {
			logger.Errorf("%s is not set, record store not initialized", cn.EnvRedisURL)
			return nil, noop, nil
		}

		client, err := redis.Connect(cfg.RedisURL)
		if err != nil {
			return nil, noop, err
		}

		return redis.New(client, cfg.Collection, logger), client.Close, nil

	case cn.StoreREST:
		if cfg.APIURL == "" {
			logger.Errorf("%s is not set, record store not initialized", cn.EnvAPIURL)
			return nil, noop, nil
		}

		return rest.New(cfg.APIURL, cfg.APIKey, cn.DefaultHTTPTimeoutSeconds*time.Second, nil, logger), noop, nil

	case cn.StoreFirestore, "":
		if cfg.FirestoreProjectID == "" {
			logger.Errorf("%s is not set, record store not initialized", cn.EnvFirestoreProjectID)
			return nil, noop, nil
		}

		if cfg.FirestoreCredentials != "" {
			if _, err := os.Stat(cfg.FirestoreCredentials); err != nil {
				logger.Errorf("Firestore credentials file %s not found, record store not initialized", cfg.FirestoreCredentials)
				return nil, noop, nil
			}
		}

		fs, err := firestore.New(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentials, cfg.Collection, logger)
		if err != nil {
			logger.Errorf("Firestore initialization failed, record store not initialized: %v", err)
			return nil, noop, nil
		}

		return fs, fs.Close, nil
	}

	return nil, noop, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.Store)
}

// Client is an activation coordinator together with the backend it owns.
type Client struct {
	*activation.Coordinator

	closeStore func() error
}

// New builds a Client from cfg. A nil logger uses the default zap logger.
func New(ctx context.Context, cfg Config, logger log.Logger, opts ...activation.Option) (*Client, error) {
	if logger == nil {
		logger = zap.InitializeLogger()
	}

	rs, closeStore, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	cc := cfg.ToClientConfig()

	coordinator, err := activation.New(&cc, rs, logger, opts...)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	return &Client{Coordinator: coordinator, closeStore: closeStore}, nil
}

// Close stops the coordinator and releases the backend.
func (c *Client) Close() {
	c.Coordinator.Close()

	if err := c.closeStore(); err != nil {
		c.Logger().Warnf("Closing activation store: %v", err)
	}
}

// Shared returns the process-wide Client built from the environment. The
// client is built once; a failed build is not kept, so a later call retries
// it (for example after a transient Firestore init error).
func Shared() (*Client, error) {
	return sharedClient.get()
}

var sharedClient = &retryOnce[*Client]{build: func() (*Client, error) {
	cfg, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	return New(context.Background(), cfg, nil)
}}

// retryOnce runs build until it first succeeds and then keeps its value.
// Concurrent callers wait for the build in progress.
type retryOnce[T any] struct {
	mu    sync.Mutex
	build func() (T, error)
	done  bool
	value T
}

func (o *retryOnce[T]) get() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.done {
		return o.value, nil
	}

	v, err := o.build()
	if err != nil {
		var zero T
		return zero, err
	}

	o.value, o.done = v, true

	return v, nil
}
