// Package mirror implements the read-only ledger interfaces against a
// Hedera mirror node REST API.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashgraph-online/flora-price-oracle/hedera"
	"github.com/hashgraph-online/flora-price-oracle/shared/params"
	"github.com/pkg/errors"
)

var _ hedera.TopicReader = (*Client)(nil)
var _ hedera.AccountReader = (*Client)(nil)

// maxPages bounds how many next links one MessagesAfter call follows.
const maxPages = 10

// Config options for the mirror client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a REST client for a Hedera mirror node.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a mirror client. A zero timeout falls back to the
// configured mirror poll timeout.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = params.FloraConfig().MirrorTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type messagesPage struct {
	Messages []*hedera.TopicMessage `json:"messages"`
	Links    pageLinks              `json:"links"`
}

type pageLinks struct {
	Next string `json:"next"`
}

type accountResponse struct {
	Account string           `json:"account"`
	Key     accountKeyDetail `json:"key"`
}

type accountKeyDetail struct {
	Type string `json:"_type"`
	Key  string `json:"key"`
}

// LatestMessages returns up to limit messages of a topic, newest first.
func (c *Client) LatestMessages(ctx context.Context, topicID string, limit int32) ([]*hedera.TopicMessage, error) {
	q := url.Values{}
	q.Set("order", "desc")
	q.Set("limit", strconv.Itoa(int(limit)))
	var page messagesPage
	if err := c.getJSON(ctx, messagesPath(topicID)+"?"+q.Encode(), &page); err != nil {
		return nil, err
	}
	return page.Messages, nil
}

// MessagesAfter returns messages with a consensus timestamp strictly after
// the cursor, oldest first, following pagination links up to a bounded
// number of pages.
func (c *Client) MessagesAfter(ctx context.Context, topicID, afterTimestamp string, limit int32) ([]*hedera.TopicMessage, error) {
	q := url.Values{}
	q.Set("order", "asc")
	q.Set("limit", strconv.Itoa(int(limit)))
	if afterTimestamp != "" {
		q.Set("timestamp", "gt:"+afterTimestamp)
	}
	next := messagesPath(topicID) + "?" + q.Encode()

	var all []*hedera.TopicMessage
	for page := 0; next != "" && page < maxPages; page++ {
		var body messagesPage
		if err := c.getJSON(ctx, next, &body); err != nil {
			return nil, err
		}
		all = append(all, body.Messages...)
		if len(body.Messages) == 0 {
			break
		}
		next = body.Links.Next
	}
	return all, nil
}

// AccountKey resolves an account's public key material.
func (c *Client) AccountKey(ctx context.Context, accountID string) (*hedera.AccountKey, error) {
	var out accountResponse
	if err := c.getJSON(ctx, "/api/v1/accounts/"+accountID, &out); err != nil {
		return nil, err
	}
	return &hedera.AccountKey{
		AccountID: out.Account,
		KeyType:   out.Key.Type,
		Key:       out.Key.Key,
	}, nil
}

func messagesPath(topicID string) string {
	return fmt.Sprintf("/api/v1/topics/%s/messages", topicID)
}

func (c *Client) getJSON(ctx context.Context, pathAndQuery string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return errors.Wrap(err, "could not build mirror request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "mirror request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("mirror responded %d for %s", resp.StatusCode, pathAndQuery)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "could not decode mirror response")
	}
	return nil
}
