// Package registry talks to the app registry over a persistent WebSocket
// session. Every operation is a single request/response exchange: requests
// carry a generated id and a type tag, responses carry a type tag naming
// which envelope field holds the payload.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// App is a registered credential record in the registry.
type App struct {
	ID          int64    `json:"app_id"`
	Name        string   `json:"name"`
	RedirectURI string   `json:"redirect_uri"`
	Github      string   `json:"github,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// AppOptions holds the mutable fields of an App, used for both register
// and update. Update replaces all of them.
type AppOptions struct {
	Name        string   `json:"name"`
	RedirectURI string   `json:"redirect_uri"`
	Github      string   `json:"github"`
	Scopes      []string `json:"scopes"`
}

// Authorization describes the permission scope granted to the session.
type Authorization struct {
	Username string   `json:"username,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// RemoteError is an error reported by the registry itself, carrying the
// remote-provided code and message.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s [%s]", e.Message, e.Code)
}

// Request and response type tags.
const (
	msgAuthorize   = "authorize"
	msgListApps    = "list_apps"
	msgRegisterApp = "register_app"
	msgUpdateApp   = "update_app"

	tagAuthorized = "authorized"
	tagApps       = "apps"
	tagApp        = "app"
	tagError      = "error"
)

// request is the envelope sent to the registry.
type request struct {
	ID      string      `json:"id"`
	Type    string      `json:"type"`
	Token   string      `json:"token,omitempty"`
	AppID   int64       `json:"app_id,omitempty"`
	Options *AppOptions `json:"options,omitempty"`
}

// response is the envelope received from the registry. Type names which of
// the payload fields is populated; the other fields stay empty.
type response struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	Authorized json.RawMessage `json:"authorized,omitempty"`
	Apps       json.RawMessage `json:"apps,omitempty"`
	App        json.RawMessage `json:"app,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

const defaultOpTimeout = 30 * time.Second

// Session is a single WebSocket session with the registry. It is owned by
// one attempt at a time and is not safe for concurrent use. Operations do
// not retry; callers decide whether a failed session is worth redialing.
type Session struct {
	conn   *websocket.Conn
	logger *slog.Logger
	newID  func() string
}

// DialOption configures Dial.
type DialOption func(*dialConfig)

type dialConfig struct {
	logger *slog.Logger
	dialer *websocket.Dialer
}

// WithLogger sets the logger used for session-level events.
func WithLogger(logger *slog.Logger) DialOption {
	return func(c *dialConfig) { c.logger = logger }
}

// WithDialer overrides the WebSocket dialer (useful for testing).
func WithDialer(d *websocket.Dialer) DialOption {
	return func(c *dialConfig) { c.dialer = d }
}

// Dial opens a session against the registry endpoint for the given target
// application. baseURL uses ws:// or wss:// scheme.
func Dial(ctx context.Context, baseURL string, targetAppID int64, opts ...DialOption) (*Session, error) {
	cfg := &dialConfig{
		logger: slog.Default(),
		dialer: websocket.DefaultDialer,
	}
	for _, o := range opts {
		o(cfg)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing registry URL: %w", err)
	}
	u = u.JoinPath("session", strconv.FormatInt(targetAppID, 10))

	conn, resp, err := cfg.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing registry (status %s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dialing registry: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(defaultOpTimeout))
	})

	return &Session{
		conn:   conn,
		logger: cfg.logger,
		newID:  uuid.NewString,
	}, nil
}

// Close tears the session down. Safe to call on an already-failed session.
func (s *Session) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}

// Authorize establishes the session's permission scope. It must succeed
// before any other operation is attempted.
func (s *Session) Authorize(ctx context.Context, token string) (Authorization, error) {
	resp, err := s.roundTrip(ctx, request{Type: msgAuthorize, Token: token})
	if err != nil {
		return Authorization{}, fmt.Errorf("authorizing session: %w", err)
	}

	var auth Authorization
	if err := json.Unmarshal(resp.Authorized, &auth); err != nil {
		return Authorization{}, fmt.Errorf("decoding authorization: %w", err)
	}
	return auth, nil
}

// ListApps returns all apps visible to the session.
func (s *Session) ListApps(ctx context.Context) ([]App, error) {
	resp, err := s.roundTrip(ctx, request{Type: msgListApps})
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}

	var apps []App
	if err := json.Unmarshal(resp.Apps, &apps); err != nil {
		return nil, fmt.Errorf("decoding app list: %w", err)
	}
	return apps, nil
}

// RegisterApp creates a new app and returns it with its registry-assigned id.
func (s *Session) RegisterApp(ctx context.Context, opts AppOptions) (App, error) {
	resp, err := s.roundTrip(ctx, request{Type: msgRegisterApp, Options: &opts})
	if err != nil {
		return App{}, fmt.Errorf("registering app: %w", err)
	}

	var app App
	if err := json.Unmarshal(resp.App, &app); err != nil {
		return App{}, fmt.Errorf("decoding registered app: %w", err)
	}
	return app, nil
}

// UpdateApp replaces all mutable fields of the app identified by id. The id
// itself never changes.
func (s *Session) UpdateApp(ctx context.Context, id int64, opts AppOptions) (App, error) {
	resp, err := s.roundTrip(ctx, request{Type: msgUpdateApp, AppID: id, Options: &opts})
	if err != nil {
		return App{}, fmt.Errorf("updating app %d: %w", id, err)
	}

	var app App
	if err := json.Unmarshal(resp.App, &app); err != nil {
		return App{}, fmt.Errorf("decoding updated app: %w", err)
	}
	return app, nil
}

// roundTrip sends one request and reads frames until the matching response
// arrives, skipping unsolicited server messages. The returned response is
// the payload-bearing envelope; error-tagged responses come back as
// *RemoteError.
func (s *Session) roundTrip(ctx context.Context, req request) (*response, error) {
	req.ID = s.newID()

	deadline := time.Now().Add(defaultOpTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("sending %s request: %w", req.Type, err)
	}

	for {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("setting read deadline: %w", err)
		}

		var resp response
		if err := s.conn.ReadJSON(&resp); err != nil {
			return nil, fmt.Errorf("reading %s response: %w", req.Type, err)
		}

		// Responses carry the request id; anything else is a push we
		// don't care about.
		if resp.ID != "" && resp.ID != req.ID {
			s.logger.Debug("skipping unrelated frame", "type", resp.Type, "id", resp.ID)
			continue
		}

		return dispatch(&resp)
	}
}

// dispatch validates that the response's type tag names a populated payload
// field. The tag is authoritative: a payload in the wrong field is ignored.
func dispatch(resp *response) (*response, error) {
	switch resp.Type {
	case tagError:
		var remote RemoteError
		if err := json.Unmarshal(resp.Error, &remote); err != nil {
			return nil, fmt.Errorf("decoding registry error: %w", err)
		}
		return nil, &remote
	case tagAuthorized:
		if resp.Authorized == nil {
			return nil, fmt.Errorf("response tagged %q has no %s field", resp.Type, tagAuthorized)
		}
	case tagApps:
		if resp.Apps == nil {
			return nil, fmt.Errorf("response tagged %q has no %s field", resp.Type, tagApps)
		}
	case tagApp:
		if resp.App == nil {
			return nil, fmt.Errorf("response tagged %q has no %s field", resp.Type, tagApp)
		}
	default:
		return nil, fmt.Errorf("unknown response tag %q", resp.Type)
	}
	return resp, nil
}
