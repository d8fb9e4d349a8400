// Package rest reaches activation codes through an HTTP gateway and watches
// them over a websocket.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	cn "github.com/LerianStudio/lib-activation-go/constant"
	libErr "github.com/LerianStudio/lib-activation-go/error"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-activation-go/pkg"
	"github.com/LerianStudio/lib-activation-go/store"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/gorilla/websocket"
)

// Client implements store.RecordStore against the activation gateway.
type Client struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	baseURL    string
	apiKey     string
	logger     log.Logger
}

var _ store.RecordStore = (*Client)(nil)

// PatchRequest is the PATCH body accepted by the gateway
type PatchRequest struct {
	Status          *string                       `json:"status,omitempty"`
	ActivatedAt     *time.Time                    `json:"activatedAt,omitempty"`
	ActualExpiresAt *time.Time                    `json:"actualExpiresAt,omitempty"`
	LastUsedAt      *time.Time                    `json:"lastUsedAt,omitempty"`
	AppendDevices   []model.DeviceActivationEntry `json:"appendDevices,omitempty"`
}

// WatchMessage is one frame of the watch websocket
type WatchMessage struct {
	Deleted bool                  `json:"deleted,omitempty"`
	Record  *model.ActivationCode `json:"record,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// NewPatchRequest converts a store patch into its wire form
func NewPatchRequest(p store.Patch) PatchRequest {
	return PatchRequest{
		Status:          p.Status,
		ActivatedAt:     p.ActivatedAt,
		ActualExpiresAt: p.ActualExpiresAt,
		LastUsedAt:      p.LastUsedAt,
		AppendDevices:   p.AppendDevices,
	}
}

// Patch converts the wire form back into a store patch
func (r PatchRequest) Patch() store.Patch {
	return store.Patch{
		Status:          r.Status,
		ActivatedAt:     r.ActivatedAt,
		ActualExpiresAt: r.ActualExpiresAt,
		LastUsedAt:      r.LastUsedAt,
		AppendDevices:   r.AppendDevices,
	}
}

// New creates a new gateway client
func New(baseURL, apiKey string, timeout time.Duration, httpClient *http.Client, logger log.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
		}
	}

	return &Client{
		httpClient: httpClient,
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// SetHTTPClient allows overriding the HTTP client (useful for testing)
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

func (c *Client) codeURL(codeID string) string {
	return fmt.Sprintf("%s/codes/%s", c.baseURL, url.PathEscape(codeID))
}

// Get fetches the record for codeID
func (c *Client) Get(ctx context.Context, codeID string) (*model.ActivationCode, error) {
	resp, err := c.do(ctx, http.MethodGet, c.codeURL(codeID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp, codeID)
	}

	var rec model.ActivationCode
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if rec.ID == "" {
		rec.ID = codeID
	}

	return rec.Normalize(), nil
}

// Update sends patch to the gateway, which merges it server-side
func (c *Client) Update(ctx context.Context, codeID string, patch store.Patch) error {
	body, err := json.Marshal(NewPatchRequest(patch))
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, c.codeURL(codeID), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleErrorResponse(resp, codeID)
	}

	return nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set(cn.APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warnf("Gateway request failed - method: %s, error: %s", method, err.Error())
		return nil, fmt.Errorf("%w: request failed: %w", store.ErrUnavailable, err)
	}

	return resp, nil
}

// handleErrorResponse maps gateway failures onto store errors
func (c *Client) handleErrorResponse(resp *http.Response, codeID string) error {
	var errorResp pkg.ResponseError

	bodyBytes, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(bodyBytes, &errorResp)

	c.logger.Debugf("Gateway error for code %s - status: %d, code: %s, message: %s",
		codeID, resp.StatusCode, errorResp.Code, errorResp.Message)

	apiErr := libErr.NewApiError(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return store.ErrNotFound
	case resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", store.ErrPreconditionFailed, apiErr)
	case libErr.IsServerError(apiErr):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, apiErr)
	}

	return apiErr
}

// Subscribe opens the watch websocket for codeID. The gateway sends the
// current state first.
func (c *Client) Subscribe(ctx context.Context, codeID string) (store.Subscription, error) {
	target := c.codeURL(codeID) + "/watch"
	target = "ws" + strings.TrimPrefix(target, "http")

	header := http.Header{}
	if c.apiKey != "" {
		header.Set(cn.APIKeyHeader, c.apiKey)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, c.handleErrorResponse(resp, codeID)
		}

		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}

	sub := &subscription{
		codeID: codeID,
		conn:   conn,
		out:    make(chan store.Event),
		done:   make(chan struct{}),
		logger: c.logger,
	}

	go sub.run()

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	return sub, nil
}

type subscription struct {
	codeID string
	conn   *websocket.Conn
	out    chan store.Event
	done   chan struct{}
	once   sync.Once
	logger log.Logger
}

func (s *subscription) Events() <-chan store.Event {
	return s.out
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *subscription) run() {
	defer close(s.out)

	for {
		var msg WatchMessage

		err := s.conn.ReadJSON(&msg)

		var ev store.Event

		switch {
		case s.closed():
			return
		case err != nil:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}

			s.logger.Errorf("Watch stream for %s failed: %v", s.codeID, err)
			ev.Err = fmt.Errorf("%w: %w", store.ErrUnavailable, err)
		case msg.Error != "":
			ev.Err = errors.New(msg.Error)
		case msg.Deleted || msg.Record == nil:
			ev.Deleted = true
		default:
			if msg.Record.ID == "" {
				msg.Record.ID = s.codeID
			}

			ev.Record = msg.Record.Normalize()
		}

		select {
		case s.out <- ev:
		case <-s.done:
			return
		}

		if err != nil {
			return
		}
	}
}

func (s *subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
