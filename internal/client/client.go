// Package client talks to a running rentals service over HTTP.
package client

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

	"rentals/internal/auth"
	"rentals/internal/rental"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New returns a client for the service at baseURL. apiKey may be empty.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) IsItemRent(ctx context.Context, itemID int64) (bool, error) {
	var rented bool
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/is-rent/item/%d", itemID), itemID, &rented)
	return rented, err
}

func (c *Client) AreItemsRent(ctx context.Context, itemIDs []int64) (*rental.Statuses, error) {
	parts := make([]string, len(itemIDs))
	for i, id := range itemIDs {
		parts[i] = strconv.FormatInt(id, 10)
	}
	q := url.Values{"itemIds": {strings.Join(parts, ",")}}

	statuses := rental.NewStatuses(len(itemIDs))
	if err := c.do(ctx, http.MethodGet, "/is-rent/items?"+q.Encode(), 0, statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

func (c *Client) RentItem(ctx context.Context, itemID int64, userID string) (*rental.Record, error) {
	var record rental.Record
	path := fmt.Sprintf("/rent/item/%d/by/%s", itemID, url.PathEscape(userID))
	if err := c.do(ctx, http.MethodPost, path, itemID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) ReturnItem(ctx context.Context, itemID int64) (*rental.Record, error) {
	var record rental.Record
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/return/item/%d", itemID), itemID, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) ListRentals(ctx context.Context, onlyOpen bool) ([]rental.Record, error) {
	var records []rental.Record
	path := "/rents?onlyRent=" + strconv.FormatBool(onlyOpen)
	if err := c.do(ctx, http.MethodGet, path, 0, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// do performs the request and decodes a 200 response into out. Rejections
// of rent and return come back as the rental package's typed errors.
func (c *Client) do(ctx context.Context, method, path string, itemID int64, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" && method != http.MethodGet {
		req.Header.Set(auth.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	message := readMessage(resp.Body)
	switch {
	case method == http.MethodPost && strings.HasPrefix(path, "/rent/") && resp.StatusCode == http.StatusNotFound:
		return &rental.AlreadyRentedError{ItemID: itemID}
	case method == http.MethodPost && strings.HasPrefix(path, "/return/") && resp.StatusCode == http.StatusBadRequest:
		return &rental.NotRentedError{ItemID: itemID}
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", rental.ErrConflict, message)
	default:
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, message)
	}
}

func readMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return strings.TrimSpace(string(data))
}
