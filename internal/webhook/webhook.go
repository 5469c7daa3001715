// Package webhook delivers signed HTTP POST notifications describing
// credential presentation and revocation events. Delivery is asynchronous:
// Launch starts the request in a background goroutine and returns
// immediately with a handle; the Delivery Engine polls that handle on each
// sweep rather than blocking the sweep loop on network I/O.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/signing"
)

// Body is the JSON envelope posted to the configured webhook URL.
type Body struct {
	Action string         `json:"action"`
	Actor  string         `json:"actor"`
	Data   map[string]any `json:"data"`
}

// Response is the outcome of a launched delivery.
type Response struct {
	StatusCode int
	Err        error
}

// InFlight is a handle to a launched, not-yet-resolved delivery.
type InFlight struct {
	SAID string

	done   chan Response
	result *Response
}

// Poll returns the delivery's result and true if it has completed, or a
// zero Response and false if it is still in flight. Non-blocking.
func (f *InFlight) Poll() (Response, bool) {
	if f.result != nil {
		return *f.result, true
	}
	select {
	case r := <-f.done:
		f.result = &r
		return r, true
	default:
		return Response{}, false
	}
}

// Client launches signed webhook deliveries against a single configured URL.
type Client struct {
	rawURL     string
	httpClient *http.Client
	signer     collab.Signer
}

// NewClient builds a Client that signs every request with signer and posts
// it to rawURL.
func NewClient(rawURL string, signer collab.Signer) *Client {
	return &Client{
		rawURL:     rawURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signer:     signer,
	}
}

// Launch builds the request body for (resource, action, actor, data),
// signs it, and starts the POST in a background goroutine. The returned
// InFlight's Poll method reports the eventual outcome.
func (c *Client) Launch(ctx context.Context, said, resource, action, actor string, data map[string]any) (*InFlight, error) {
	body := Body{Action: action, Actor: actor, Data: data}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	u, err := url.Parse(c.rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	now := time.Now().UTC()
	sig, err := signing.Sign(ctx, c.signer, signing.Headers{
		Resource:  resource,
		Method:    http.MethodPost,
		Path:      path,
		Timestamp: now.Format(time.RFC3339Nano),
	}, now)
	if err != nil {
		return nil, fmt.Errorf("sign webhook request: %w", err)
	}

	f := &InFlight{SAID: said, done: make(chan Response, 1)}

	go func() {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rawURL, bytes.NewReader(raw))
		if err != nil {
			f.done <- Response{Err: fmt.Errorf("create webhook request: %w", err)}
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Connection", "close")
		req.Header.Set("Sally-Resource", resource)
		req.Header.Set("Sally-Timestamp", now.Format(time.RFC3339Nano))
		req.Header.Set("Signature", "sig0=:"+sig.Signature+":")
		req.Header.Set("Signature-Input", sig.SignatureInput)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			f.done <- Response{Err: fmt.Errorf("send webhook request: %w", err)}
			return
		}
		defer resp.Body.Close()
		f.done <- Response{StatusCode: resp.StatusCode}
	}()

	return f, nil
}
