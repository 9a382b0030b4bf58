//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

var ctl *controller

// controller talks to a running tipshield_controller. origin is unique per
// run so filter tests never touch real entries.
type controller struct {
	baseURL string
	client  *http.Client
	origin  string
}

func TestMain(m *testing.M) {
	baseURL := os.Getenv("TIPSHIELD_CONTROLLER_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8288"
	}
	ctl = &controller{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		origin:  fmt.Sprintf("tipshield-it-%d.test", time.Now().UnixNano()),
	}

	resp, err := ctl.client.Get(ctl.baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "controller not reachable at %s: %v\n", ctl.baseURL, err)
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "controller health: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	code := m.Run()

	if req, err := http.NewRequest(http.MethodDelete, ctl.baseURL+ctl.filtersPath(), nil); err == nil {
		if resp, err := ctl.client.Do(req); err == nil {
			resp.Body.Close()
		}
	}
	os.Exit(code)
}

// call sends body as JSON when it is non-nil. The caller owns the response.
func (c *controller) call(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("%s %s: marshal body: %v", method, path, err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (c *controller) filtersPath() string {
	return "/api/v1/cosmetic-filters/" + c.origin
}

// message posts an extension message and decodes the reply envelope.
func (c *controller) message(t *testing.T, msg map[string]any) reply {
	t.Helper()
	return expectJSON[reply](t, c.call(t, http.MethodPost, "/api/v1/messages", msg), http.StatusOK)
}

// expectStatus checks the status and closes the body.
func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
}

// expectJSON checks the status and decodes the body into T.
func expectJSON[T any](t *testing.T, resp *http.Response, want int) T {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d; body: %s", resp.StatusCode, want, body)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}
