package client

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
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

const userHeader = "X-User-ID"

var ErrAPI = errors.New("room api error")

// API talks to the server's /api/rooms endpoints as one user.
type API struct {
	base string
	user domain.UserID
	http *http.Client
}

// NewAPI takes the server's base URL, http(s) or ws(s).
func NewAPI(serverURL string, user domain.UserID) *API {
	return &API{
		base: strings.TrimRight(HTTPBase(serverURL), "/"),
		user: user,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// HTTPBase maps ws(s):// to http(s):// and leaves anything else alone.
func HTTPBase(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "ws://"):
		return "http://" + strings.TrimPrefix(serverURL, "ws://")
	case strings.HasPrefix(serverURL, "wss://"):
		return "https://" + strings.TrimPrefix(serverURL, "wss://")
	}
	return serverURL
}

// SignalURL is the websocket endpoint for serverURL.
func SignalURL(serverURL string) string {
	base := strings.TrimRight(HTTPBase(serverURL), "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/ws/signal"
}

func (a *API) do(ctx context.Context, method, path string, body, out any, want int) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(userHeader, string(a.user))

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%w: %s %s: %d %s", ErrAPI, method, path, resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (a *API) ListRooms(ctx context.Context) ([]domain.RoomSummary, error) {
	var out struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/rooms", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Rooms, nil
}

func (a *API) CreateRoom(ctx context.Context, name string, capacity int) (domain.RoomSummary, error) {
	body := map[string]any{"roomName": name, "maxParticipants": capacity}
	var out domain.RoomSummary
	err := a.do(ctx, http.MethodPost, "/api/rooms", body, &out, http.StatusCreated)
	return out, err
}

func (a *API) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	return a.do(ctx, http.MethodDelete, "/api/rooms/"+url.PathEscape(string(id)), nil, nil, http.StatusNoContent)
}
