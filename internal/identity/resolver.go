// Package identity resolves the per-installation device identifier and
// collects the device snapshot recorded with each activation.
package identity

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/LerianStudio/lib-commons/commons/zap"
	"github.com/google/uuid"
)

// Resolver reads, and on first use creates, the device identity file.
type Resolver struct {
	path      string
	endpoints []string
	logger    log.Logger

	mu       sync.Mutex
	resolved *model.DeviceIdentity
}

// NewResolver creates a resolver for the identity file at path. endpoints are
// the public IP echo services used by CollectDeviceInfo, tried in order.
func NewResolver(path string, endpoints []string, logger log.Logger) *Resolver {
	if logger == nil {
		logger = zap.InitializeLogger()
	}

	if len(endpoints) == 0 {
		endpoints = cn.DefaultPublicIPEndpoints
	}

	return &Resolver{
		path:      path,
		endpoints: endpoints,
		logger:    logger,
	}
}

// Resolve returns the device identity. The result is memoized so an
// ephemeral identifier stays stable for the life of the process.
func (r *Resolver) Resolve() model.DeviceIdentity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != nil {
		return *r.resolved
	}

	id := r.load()
	r.resolved = &id

	return id
}

func (r *Resolver) load() model.DeviceIdentity {
	data, err := os.ReadFile(r.path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if len(id) >= cn.MinDeviceIDLength {
			return model.DeviceIdentity{ID: id, Persistent: true}
		}

		r.logger.Warnf("Device identity file %s holds an unusable value, regenerating", r.path)
	} else if !errors.Is(err, os.ErrNotExist) {
		r.logger.Errorf("Failed to read device identity file %s: %v", r.path, err)
		return r.ephemeral()
	}

	id := uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		r.logger.Errorf("Failed to create directory for device identity: %v", err)
		return r.ephemeral()
	}

	if err := os.WriteFile(r.path, []byte(id+"\n"), 0o600); err != nil {
		r.logger.Errorf("Failed to persist device identity: %v", err)
		return r.ephemeral()
	}

	r.logger.Infof("Generated new device identity %s", id)

	return model.DeviceIdentity{ID: id, Persistent: true}
}

func (r *Resolver) ephemeral() model.DeviceIdentity {
	id := uuid.NewString() + cn.EphemeralDeviceSuffix
	r.logger.Warnf("Using in-memory device identity %s; activation will be refused", id)

	return model.DeviceIdentity{ID: id, Persistent: false}
}
