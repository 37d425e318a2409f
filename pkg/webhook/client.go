package webhook

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kacperjurak/golgadcore/pkg/models"
)

// Client handles webhook HTTP requests with connection pooling
type Client struct {
	url        string
	httpClient *http.Client
	quiet      bool
	bufferPool sync.Pool // Pool for JSON marshaling buffers
}

// NewClient creates a new webhook client with connection pooling
func NewClient(url string, quiet bool) *Client {
	transport := &http.Transport{
		// Connection pooling settings
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},

		ResponseHeaderTimeout: 30 * time.Second,

		// Reports are small
		DisableCompression: true,
		ForceAttemptHTTP2:  false,
	}

	return &Client{
		url:   url,
		quiet: quiet,
		httpClient: &http.Client{
			Timeout:   45 * time.Second,
			Transport: transport,
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 4096))
			},
		},
	}
}

// URL returns the endpoint reports are posted to
func (c *Client) URL() string {
	return c.url
}

// Send posts one event report
func (c *Client) Send(item models.WebhookItem) error {
	payload := item.Report
	if payload.ID == "" {
		payload.ID = item.RequestID
	}
	if payload.Time == "" {
		payload.Time = time.Now().Format(time.RFC3339Nano)
	}

	// Get buffer from pool and marshal to JSON
	buf := c.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.bufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("failed to marshal webhook data: %w", err)
	}

	resp, err := c.httpClient.Post(c.url, "application/json", bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if !c.quiet {
		log.Printf("Webhook sent - ID: %s, Event: %d, State: %s, Status: %d",
			payload.ID, payload.EventID, payload.State, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}
	return nil
}
