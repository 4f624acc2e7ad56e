package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rocketscienceinc/tictactoe-sync/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-sync/internal/entity"
)

const (
	statePath = "/api/state"
	movePath  = "/api/move"
	resetPath = "/api/reset"

	maxBodySize = 64 << 10
)

// Client talks to the authoritative game server. Every successful call returns a full
// snapshot, every failure wraps either apperror.ErrMoveRejected or apperror.ErrTransportFailure.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client

	fetches singleflight.Group
}

func New(logger *slog.Logger, baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		logger:  logger.With("component", "sync_client"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}, nil
}

// FetchState - reads the current server snapshot. Concurrent callers share one request,
// so a caller joining a fetch already in flight gets a snapshot that may predate its call.
func (that *Client) FetchState(ctx context.Context) (entity.GameState, error) {
	ch := that.fetches.DoChan(statePath, func() (any, error) {
		return that.do(context.WithoutCancel(ctx), http.MethodGet, statePath, nil)
	})

	select {
	case <-ctx.Done():
		return entity.GameState{}, fmt.Errorf("%w: %w", apperror.ErrTransportFailure, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return entity.GameState{}, res.Err
		}

		if res.Shared {
			that.logger.Debug("state fetch coalesced")
		}

		return res.Val.(entity.GameState), nil
	}
}

// SubmitMove - asks the server to play index for the side to move.
func (that *Client) SubmitMove(ctx context.Context, index int) (entity.GameState, error) {
	return that.do(ctx, http.MethodPost, movePath, entity.MoveRequest{Index: &index})
}

// ResetGame - discards the server game and returns the fresh one.
func (that *Client) ResetGame(ctx context.Context) (entity.GameState, error) {
	return that.do(ctx, http.MethodPost, resetPath, nil)
}

func (that *Client) do(ctx context.Context, method, path string, payload any) (entity.GameState, error) {
	log := that.logger.With("method", method, "path", path)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return entity.GameState{}, fmt.Errorf("%w: failed to encode request: %w", apperror.ErrTransportFailure, err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, that.baseURL+path, body)
	if err != nil {
		return entity.GameState{}, fmt.Errorf("%w: failed to build request: %w", apperror.ErrTransportFailure, err)
	}

	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := that.http.Do(req)
	if err != nil {
		log.Debug("request failed", "error", err)
		return entity.GameState{}, fmt.Errorf("%w: %w", apperror.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return entity.GameState{}, fmt.Errorf("%w: failed to read response: %w", apperror.ErrTransportFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return entity.GameState{}, that.statusError(path, resp.StatusCode, data)
	}

	var state entity.GameState
	if err = json.Unmarshal(data, &state); err != nil {
		log.Warn("server sent an unusable state", "error", err)

		if !errors.Is(err, apperror.ErrMalformedState) {
			err = fmt.Errorf("%w: %w", apperror.ErrMalformedState, err)
		}

		return entity.GameState{}, fmt.Errorf("%w: %w", apperror.ErrTransportFailure, err)
	}

	return state, nil
}

// statusError - a move declined with an {"error"} body is a rejection, anything else is
// a transport failure.
func (that *Client) statusError(path string, status int, data []byte) error {
	var rejection entity.ErrorResponse
	if err := json.Unmarshal(data, &rejection); err == nil && rejection.Error != "" {
		if path == movePath && status >= 400 && status < 500 {
			return fmt.Errorf("%w: %s", apperror.ErrMoveRejected, rejection.Error)
		}

		return fmt.Errorf("%w: status %d: %s", apperror.ErrTransportFailure, status, rejection.Error)
	}

	return fmt.Errorf("%w: unexpected status %d", apperror.ErrTransportFailure, status)
}
