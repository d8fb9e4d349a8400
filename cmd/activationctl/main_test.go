package main

import (
	"bytes"
	"encoding/json"
	"testing"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T) {
	t.Helper()

	t.Setenv(cn.EnvStore, cn.StoreMemory)
	t.Setenv(cn.EnvDataDir, t.TempDir())
	t.Setenv(cn.EnvPublicIPEndpoints, "http://127.0.0.1:1")
}

func TestRunWithoutCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "usage: activationctl")
}

func TestRunUnknownCommand(t *testing.T) {
	setEnv(t)

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run([]string{"dance"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "commands:")
}

func TestRunActivateUnknownCode(t *testing.T) {
	setEnv(t)

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"activate", "NOPE"}, &stdout, &stderr))

	var res model.Result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, cn.ReasonCodeNotFound, res.Reason)
}

func TestRunStatusWithoutActivation(t *testing.T) {
	setEnv(t)

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 1, run([]string{"status"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), cn.ReasonNoLocalActivation)
}

func TestRunDevice(t *testing.T) {
	setEnv(t)

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run([]string{"device"}, &stdout, &stderr))

	var out struct {
		ID         string
		Persistent bool
		Info       model.DeviceInfo `json:"info"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.True(t, out.Persistent)
	assert.GreaterOrEqual(t, len(out.ID), cn.MinDeviceIDLength)
	assert.Equal(t, cn.NotAvailable, out.Info.PublicIP)
}

func TestRunClearWithoutActivation(t *testing.T) {
	setEnv(t)

	var stdout, stderr bytes.Buffer

	assert.Equal(t, 0, run([]string{"clear"}, &stdout, &stderr))
}

func TestRunBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run([]string{"verify", "-timeout", "later"}, &stdout, &stderr))
}
