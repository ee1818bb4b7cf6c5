package main

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

	"github.com/kalambet/aiassist/internal/api"
	"github.com/kalambet/aiassist/internal/config"
	"github.com/kalambet/aiassist/internal/poller"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	token := cfg.Server.Token
	if token == "" {
		token, err = config.EnsureAPIToken(config.NewKeyringStore(config.KeyringService))
		if err != nil {
			return nil, fmt.Errorf("getting API token: %w", err)
		}
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// apiError is the decoded error envelope of a failed request.
type apiError struct {
	Status           int               `json:"-"`
	Message          string            `json:"message"`
	Type             string            `json:"type"`
	Fields           map[string]string `json:"fields"`
	Problems         []string          `json:"problems"`
	ExistingActionID int64             `json:"existing_action_id"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	if len(e.Problems) > 0 {
		msg += "\n  " + strings.Join(e.Problems, "\n  ")
	}
	return msg
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, userID int64) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		req.Header.Set(api.UserHeader, fmt.Sprint(userID))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is aiassist start running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, 0)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

func (c *apiClient) post(ctx context.Context, path string, body, v any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body, 0)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var envelope struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			return envelope.Error
		}
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if v == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *apiClient) createModule(ctx context.Context, typ, name string) (api.ModuleView, error) {
	var m api.ModuleView
	err := c.post(ctx, "/modules", map[string]string{"type": typ, "name": name}, &m)
	return m, err
}

func (c *apiClient) listModules(ctx context.Context) ([]api.ModuleView, error) {
	var out []api.ModuleView
	err := c.get(ctx, "/modules", &out)
	return out, err
}

// launchAction queues an action on the server and returns its id.
func (c *apiClient) launchAction(ctx context.Context, moduleID, userID int64, name string, data map[string]any) (int64, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/modules/%d/actions", moduleID),
		map[string]any{"action": name, "data": data}, userID)
	if err != nil {
		return 0, err
	}
	var out struct {
		ActionID int64 `json:"action_id"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}
	return out.ActionID, nil
}

func (c *apiClient) getAction(ctx context.Context, id int64) (api.ActionView, error) {
	var a api.ActionView
	err := c.get(ctx, fmt.Sprintf("/actions/%d", id), &a)
	return a, err
}

func (c *apiClient) activeAction(ctx context.Context, moduleID, userID int64) (*api.ActionView, error) {
	q := url.Values{"user": {fmt.Sprint(userID)}}
	var out struct {
		ActionID *int64          `json:"action_id"`
		Action   *api.ActionView `json:"action"`
	}
	if err := c.get(ctx, fmt.Sprintf("/modules/%d/actions/active?%s", moduleID, q.Encode()), &out); err != nil {
		return nil, err
	}
	return out.Action, nil
}

func (c *apiClient) cancelAction(ctx context.Context, id int64) (bool, string, error) {
	var out struct {
		Cancelled bool   `json:"cancelled"`
		Status    string `json:"status"`
	}
	err := c.post(ctx, fmt.Sprintf("/actions/%d/cancel", id), nil, &out)
	return out.Cancelled, out.Status, err
}

// FetchStatus implements poller.Fetcher.
func (c *apiClient) FetchStatus(ctx context.Context, id int64) (poller.Status, error) {
	a, err := c.getAction(ctx, id)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return poller.Status{}, fmt.Errorf("action %d: %w", id, poller.ErrNotFound)
	}
	if err != nil {
		return poller.Status{}, err
	}
	return poller.Status{
		ID:          a.ID,
		Status:      a.Status,
		Progress:    a.Progress,
		StatusText:  a.StatusText,
		Description: a.Description,
	}, nil
}
