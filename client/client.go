// Package client is the Go counterpart of the chat web client: history
// backfill over HTTP and a realtime session per channel over websocket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/pkg/protocol"

	"github.com/gorilla/websocket"
)

var (
	ErrValidation   = domain.ErrValidation
	ErrAccessDenied = domain.ErrAccessDenied
	ErrNotFound     = domain.ErrNotFound
	ErrPersistence  = domain.ErrPersistence
	ErrTransport    = domain.ErrTransport
	ErrUnauthorized = domain.ErrUnauthorized

	ErrClosed = fmt.Errorf("%w: session closed", domain.ErrTransport)
)

type Options struct {
	// BaseURL of the chat service, e.g. http://localhost:8080.
	BaseURL string
	Token   string

	HTTPClient *http.Client
	Dialer     *websocket.Dialer

	ReconnectAttempts int
	ReconnectDelay    time.Duration
	DialTimeout       time.Duration
	SendTimeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 10 * time.Second
	}
	return o
}

type Client struct {
	base *url.URL
	opts Options
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", opts.BaseURL)
	}
	return &Client{base: base, opts: opts.withDefaults()}, nil
}

type History struct {
	Messages   []protocol.Message `json:"messages"` // oldest first
	HasMore    bool               `json:"hasMore"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
}

// History fetches page (1-based) of the channel's message history.
func (c *Client) History(ctx context.Context, channelID string, page, size int) (*History, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("limit", strconv.Itoa(size))
	}
	u := c.base.JoinPath("channels", channelID, "messages")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.opts.Token)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeHTTPError(resp)
	}
	var h History
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: decode history: %v", ErrTransport, err)
	}
	return &h, nil
}

func decodeHTTPError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Code != "" {
		return &protocol.Error{Code: protocol.Code(body.Code), Message: body.Error}
	}
	return fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
}

func (c *Client) wsURL(channelID string) string {
	u := *c.base
	u.Scheme = map[string]string{"http": "ws", "https": "wss"}[u.Scheme]
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"channelId": {channelID}}.Encode()
	return u.String()
}

// dial opens a websocket already joined to channelID.
func (c *Client) dial(ctx context.Context, channelID string) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	header := http.Header{"Authorization": {"Bearer " + c.opts.Token}}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.wsURL(channelID), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}

	// wait for the handshake join; broadcasts racing the ack are dropped,
	// the caller backfills through History
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: await join: %v", ErrTransport, err)
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}

		switch e := ev.(type) {
		case protocol.Joined:
			_ = conn.SetReadDeadline(time.Time{})
			return conn, nil
		case protocol.Error:
			_ = conn.Close()
			return nil, &e
		case protocol.Message:
			continue
		default:
			_ = conn.Close()
			return nil, fmt.Errorf("%w: unexpected %s before join", ErrTransport, ev.Type())
		}
	}
}

// Connect opens a realtime session subscribed to channelID.
func (c *Client) Connect(ctx context.Context, channelID string) (*Session, error) {
	conn, err := c.dial(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return newSession(c, channelID, conn), nil
}

func isPermanent(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrNotFound)
}
