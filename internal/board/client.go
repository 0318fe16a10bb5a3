package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

// HTTP is a Board backed by a remote Server.
type HTTP struct {
	base string
	hc   *http.Client
}

func NewHTTP(baseURL string, hc *http.Client) *HTTP {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTP{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (c *HTTP) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %s", ErrInvalidEntry, strings.TrimSpace(string(msg)))
		}
		return fmt.Errorf("board: %s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTP) Post(ctx context.Context, e Entry) (Entry, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	var out Entry
	if err := c.do(ctx, http.MethodPost, "/v1/entries", raw, &out); err != nil {
		return Entry{}, err
	}
	return out, nil
}

func (c *HTTP) All(ctx context.Context) ([]Entry, error) {
	var out []Entry
	if err := c.do(ctx, http.MethodGet, "/v1/entries", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTP) For(ctx context.Context, ppk keys.DiversifiedPublicKey) ([]Entry, error) {
	var out []Entry
	if err := c.do(ctx, http.MethodGet, "/v1/entries?ppk="+url.QueryEscape(ppk.String()), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ Board = (*HTTP)(nil)
