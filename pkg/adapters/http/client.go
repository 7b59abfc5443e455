package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/softbus/internal/logging"
	"github.com/aretw0/softbus/pkg/dispatcher"
	"github.com/aretw0/softbus/pkg/domain"
	"github.com/aretw0/softbus/pkg/ipc"
)

// unixBaseURL is the placeholder host used when requests are dialed over a unix socket.
const unixBaseURL = "http://softbus"

// RemoteClient talks to a Server. It implements dispatcher.Transport.
type RemoteClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

var _ dispatcher.Transport = (*RemoteClient)(nil)

// ClientOption configures the RemoteClient.
type ClientOption func(*RemoteClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(rc *RemoteClient) {
		rc.client = c
	}
}

// WithClientLogger configures a logger for the RemoteClient.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(rc *RemoteClient) {
		rc.logger = logger
	}
}

// NewRemoteClient creates a client for the server at baseURL.
func NewRemoteClient(baseURL string, opts ...ClientOption) *RemoteClient {
	rc := &RemoteClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Dial creates a client for a server listening on network/address ("unix" or "tcp").
func Dial(network, address string, opts ...ClientOption) *RemoteClient {
	if network != "unix" {
		return NewRemoteClient("http://"+address, opts...)
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", address)
		},
	}
	opts = append([]ClientOption{WithHTTPClient(&http.Client{Transport: transport})}, opts...)
	return NewRemoteClient(unixBaseURL, opts...)
}

// Call posts req to the server and returns the reply Parcel. A request the
// server could not decode still yields a reply carrying its result code.
func (rc *RemoteClient) Call(ctx context.Context, op dispatcher.Op, req *ipc.Parcel) (*ipc.Parcel, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		rc.baseURL+"/v1/ipc/"+url.PathEscape(string(op)), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := rc.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", dispatcher.ErrUnknownOp, op)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	reply := ipc.New()
	if err := json.NewDecoder(resp.Body).Decode(reply); err != nil {
		return nil, fmt.Errorf("decode %s reply (status %d): %w", op, resp.StatusCode, err)
	}
	return reply, nil
}

// Events subscribes to the channel events of sessionName. The server must be
// registered and the caller allowed to open sessions on it. It returns once the
// subscription is live; the channel is closed when ctx is done, the stream ends
// or the server is removed.
func (rc *RemoteClient) Events(ctx context.Context, sessionName string) (<-chan domain.ChannelEvent, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		rc.baseURL+"/v1/events?session_name="+url.QueryEscape(sessionName), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := rc.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionName, domain.ErrPermissionDenied)
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionName, domain.ErrNotFound)
	case http.StatusBadRequest:
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionName, domain.ErrInvalidParam)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe %s: unexpected status %d", sessionName, resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBody)
	if err := awaitPing(scanner); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionName, err)
	}

	out := make(chan domain.ChannelEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data: ")
			if !ok {
				continue
			}
			var ev domain.ChannelEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				rc.logger.Warn("SSE: undecodable event", "session_name", sessionName, "err", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// awaitPing consumes the stream up to the end of the server's connect event.
func awaitPing(scanner *bufio.Scanner) error {
	seen := false
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: ping" {
			seen = true
			continue
		}
		if seen && line == "" {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}

// Health returns nil if the server reports healthy.
func (rc *RemoteClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rc.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := rc.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
