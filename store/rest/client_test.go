package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	libErr "github.com/LerianStudio/lib-activation-go/error"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-activation-go/store/memory"
	"github.com/LerianStudio/lib-activation-go/store/rest"
	"github.com/LerianStudio/lib-activation-go/test/helper"
	"github.com/LerianStudio/lib-activation-go/test/helper/testlogger"
	"github.com/LerianStudio/lib-activation-go/test/mocks"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "secret-key"

// gateway serves a memory store the way the activation gateway does.
func gateway(t *testing.T, backing *memory.Store) *helper.TestServer {
	t.Helper()

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()

	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get(cn.APIKeyHeader) != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"code": "UNAUTHORIZED", "message": "bad key"})

			return false
		}

		return true
	}

	mux.HandleFunc("GET /codes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		rec, err := backing.Get(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		_ = json.NewEncoder(w).Encode(rec)
	})

	mux.HandleFunc("PATCH /codes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		var body rest.PatchRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := backing.Update(r.Context(), r.PathValue("id"), body.Patch()); errors.Is(err, store.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /codes/{id}/watch", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub, err := backing.Subscribe(context.Background(), r.PathValue("id"))
		if err != nil {
			return
		}
		defer sub.Unsubscribe()

		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					sub.Unsubscribe()
					return
				}
			}
		}()

		for ev := range sub.Events() {
			if err := conn.WriteJSON(rest.WatchMessage{Deleted: ev.Deleted, Record: ev.Record}); err != nil {
				return
			}
		}
	})

	return helper.NewTestServer(t, mux)
}

func newClient(t *testing.T, backing *memory.Store) *rest.Client {
	t.Helper()

	srv := gateway(t, backing)

	return rest.New(srv.URL, apiKey, time.Second, nil, testlogger.New())
}

func TestGet(t *testing.T) {
	backing := memory.New()
	backing.Put(&model.ActivationCode{ID: "CODE", Status: "unused"})

	client := newClient(t, backing)

	rec, err := client.Get(context.Background(), "CODE")
	require.NoError(t, err)
	assert.Equal(t, "CODE", rec.ID)
	assert.Equal(t, "UNUSED", rec.Status)

	_, err = client.Get(context.Background(), "MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetRejectedKeyIsClientError(t *testing.T) {
	srv := gateway(t, memory.New())
	client := rest.New(srv.URL, "wrong", time.Second, nil, testlogger.New())

	_, err := client.Get(context.Background(), "CODE")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable)

	var apiErr *libErr.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int64(1), srv.Requests())
}

func TestTransportFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *http.Client
		want   error
	}{
		{"connection refused", mocks.HTTPClientWithError(errors.New("dial tcp: connection refused")), store.ErrUnavailable},
		{"server error", mocks.HTTPClientWithStatusMock(http.StatusBadGateway, nil), store.ErrUnavailable},
		{"not found", mocks.HTTPClientWithStatusMock(http.StatusNotFound, nil), store.ErrNotFound},
		{"precondition", mocks.HTTPClientWithStatusMock(http.StatusPreconditionFailed, nil), store.ErrPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := rest.New("http://gateway.invalid", apiKey, time.Second, tt.client, testlogger.New())

			_, err := client.Get(context.Background(), "CODE")
			assert.ErrorIs(t, err, tt.want)

			err = client.Update(context.Background(), "CODE", store.Patch{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestShape(t *testing.T) {
	recorder := &mocks.RequestRecorder{Status: http.StatusNoContent}

	client := rest.New("http://gateway.invalid/", apiKey, time.Second, nil, testlogger.New())
	client.SetHTTPClient(recorder.Client())

	status := "ACTIVE"
	require.NoError(t, client.Update(context.Background(), "A B", store.Patch{Status: &status}))

	seen, body := recorder.Last()
	require.NotNil(t, seen)
	assert.Equal(t, http.MethodPatch, seen.Method)
	assert.Equal(t, apiKey, seen.Header.Get(cn.APIKeyHeader))
	assert.Equal(t, "application/json", seen.Header.Get("Content-Type"))
	assert.Equal(t, "/codes/A%20B", seen.URL.EscapedPath())
	assert.Contains(t, string(body), `"ACTIVE"`)
}

func TestUpdate(t *testing.T) {
	backing := memory.New()
	backing.Put(&model.ActivationCode{ID: "CODE", Status: "UNUSED", DeviceLimit: 2})

	client := newClient(t, backing)

	active := "ACTIVE"
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	entry := model.NewDeviceActivationEntry("device-A-000001", model.DeviceInfo{Hostname: "box"}, now)

	require.NoError(t, client.Update(context.Background(), "CODE", store.Patch{
		Status:        &active,
		ActivatedAt:   &now,
		AppendDevices: []model.DeviceActivationEntry{entry},
	}))

	rec, err := backing.Get(context.Background(), "CODE")
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", rec.Status)
	assert.True(t, rec.ActivatedAt.Equal(now))
	require.Len(t, rec.ActivatedDevices, 1)
	assert.True(t, rec.ActivatedDevices[0].Equal(entry))

	assert.ErrorIs(t, client.Update(context.Background(), "MISSING", store.Patch{}), store.ErrNotFound)
}

func TestSubscribe(t *testing.T) {
	backing := memory.New()
	backing.Put(&model.ActivationCode{ID: "CODE", Status: "ACTIVE"})

	client := newClient(t, backing)

	sub, err := client.Subscribe(context.Background(), "CODE")
	require.NoError(t, err)

	receive := func() store.Event {
		select {
		case ev, ok := <-sub.Events():
			require.True(t, ok)
			return ev
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
			return store.Event{}
		}
	}

	first := receive()
	require.NotNil(t, first.Record)
	assert.Equal(t, "ACTIVE", first.Record.Status)

	require.NoError(t, backing.Mutate("CODE", func(rec *model.ActivationCode) { rec.Status = "REVOKED" }))
	assert.Equal(t, "REVOKED", receive().Record.Status)

	backing.Delete("CODE")
	assert.True(t, receive().Deleted)

	sub.Unsubscribe()
	sub.Unsubscribe()

	assert.Eventually(t, func() bool {
		_, ok := <-sub.Events()
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return backing.Subscribers("CODE") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeRejected(t *testing.T) {
	srv := gateway(t, memory.New())
	client := rest.New(srv.URL, "wrong", time.Second, nil, testlogger.New())

	_, err := client.Subscribe(context.Background(), "CODE")
	require.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
}

func TestSubscribeUnreachable(t *testing.T) {
	client := rest.New("http://127.0.0.1:1", apiKey, time.Second, nil, testlogger.New())

	_, err := client.Subscribe(context.Background(), "CODE")
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
