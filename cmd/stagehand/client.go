package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atelierhq/stagehand"
)

// APIClient talks to a running stagehand daemon over its loopback control API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:43209/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// IsReachable reports whether the daemon answers on the control API.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (c *APIClient) Start() error {
	return c.post("/start")
}

func (c *APIClient) Stop() error {
	return c.post("/stop")
}

func (c *APIClient) Restart() error {
	return c.post("/restart")
}

func (c *APIClient) Status() (stagehand.Status, error) {
	var st stagehand.Status
	err := c.get("/status", &st)
	return st, err
}

func (c *APIClient) SuggestPort(base int) (int, error) {
	var out struct {
		Port int `json:"port"`
	}
	path := "/ports/suggest"
	if base > 0 {
		path = fmt.Sprintf("%s?base=%d", path, base)
	}
	if err := c.get(path, &out); err != nil {
		return 0, err
	}
	return out.Port, nil
}

func (c *APIClient) Events(limit int) ([]stagehand.Event, error) {
	var events []stagehand.Event
	path := "/events"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	err := c.get(path, &events)
	return events, err
}

func (c *APIClient) post(path string) error {
	resp, err := c.client.Post(c.baseURL+path, "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

func (c *APIClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
