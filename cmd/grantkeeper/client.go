package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// client habla con la API de administración (/v1) usando X-Admin-API-Key.
type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
	Out       io.Writer
}

func newClient() *client {
	return &client{
		BaseURL:   envOr("GRANTKEEPER_ADMIN_URL", "http://localhost:8080"),
		APIKey:    envOr("GRANTKEEPER_ADMIN_KEY", ""),
		OutFormat: envOr("GRANTKEEPER_OUT", "text"),
		HTTP:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(method, path string, body any) (int, []byte, error) {
	if c.APIKey == "" {
		return 0, nil, fmt.Errorf("falta API key (flag --admin-api-key o env GRANTKEEPER_ADMIN_KEY)")
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.BaseURL, "/")+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

// call ejecuta el request y falla si el status no es 2xx.
func (c *client) call(op, method, path string, body any) error {
	status, resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("%s fallo: status=%d body=%s", op, status, strings.TrimSpace(string(resp)))
	}
	c.print(status, resp)
	return nil
}

func (c *client) print(status int, body []byte) {
	out := c.Out
	if out == nil {
		out = stdout
	}
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(out, string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Fprintln(out, strings.TrimSpace(string(body)))
	} else {
		fmt.Fprintf(out, "status=%d\n", status)
	}
}

func seg(s string) string { return url.PathEscape(s) }
