// Package chain issues receiving addresses, either through a remote
// address-generation service or by deriving them locally from an
// extended public key.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ReceivingAddress is the result of generating one receiving address.
type ReceivingAddress struct {
	Address  string `json:"address"`
	Index    int64  `json:"index"`
	Callback string `json:"callback"`
}

// AddressSource yields a fresh receiving address bound to a callback URL.
type AddressSource interface {
	GenerateReceivingAddress(ctx context.Context, callbackURL string) (*ReceivingAddress, error)
}

// RemoteError is a failed address-generation call. Status is zero when
// the request never produced a response (transport failure, timeout).
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("address service unreachable: %s", e.Body)
	}
	return fmt.Sprintf("address service status %d: %s", e.Status, e.Body)
}

// ClientConfig configures the remote address-generation client.
type ClientConfig struct {
	BaseURL  string
	XPub     string
	APIKey   string
	GapLimit int // zero leaves the gap_limit parameter unset
}

// Client calls a blockchain.info style receive endpoint:
// GET <base>?xpub=&callback=&key=[&gap_limit=] -> {address,index,callback}.
type Client struct {
	cfg    ClientConfig
	client *http.Client
	log    zerolog.Logger
}

func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

// GenerateReceivingAddress issues one outbound request. It does not
// retry; retry and failover policy belong to the caller or MultiClient.
func (c *Client) GenerateReceivingAddress(ctx context.Context, callbackURL string) (*ReceivingAddress, error) {
	values := url.Values{}
	values.Set("xpub", c.cfg.XPub)
	values.Set("callback", callbackURL)
	values.Set("key", c.cfg.APIKey)
	if c.cfg.GapLimit > 0 {
		values.Set("gap_limit", strconv.Itoa(c.cfg.GapLimit))
	}
	endpoint := c.cfg.BaseURL + "?" + values.Encode()

	c.log.Info().
		Str("endpoint", c.cfg.BaseURL).
		Str("callback", callbackURL).
		Int("gap_limit", c.cfg.GapLimit).
		Msg("generating receiving address")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		remoteErr := &RemoteError{Body: err.Error()}
		c.log.Error().Err(remoteErr).Str("endpoint", c.cfg.BaseURL).Msg("generating receiving address failed")
		return nil, remoteErr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		remoteErr := &RemoteError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		c.log.Error().
			Int("status", remoteErr.Status).
			Str("body", remoteErr.Body).
			Str("endpoint", c.cfg.BaseURL).
			Msg("generating receiving address failed")
		return nil, remoteErr
	}

	var out ReceivingAddress
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode address service response: %w", err)
	}

	c.log.Info().
		Str("address", out.Address).
		Int64("index", out.Index).
		Msg("generated receiving address")
	return &out, nil
}
