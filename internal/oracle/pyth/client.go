// Package pyth implements oracle.PriceSource against the Pyth Hermes REST
// API.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Client is the REST client for a Pyth Hermes endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Hermes client.
//
// baseURL is the Hermes root, e.g. "https://hermes.pyth.network".
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiPrice mirrors the price object inside a Hermes parsed update.
type apiPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int32  `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// apiUpdate mirrors one entry of the "parsed" array.
type apiUpdate struct {
	ID    string   `json:"id"`
	Price apiPrice `json:"price"`
}

// apiResponse mirrors the /v2/updates/price/latest response envelope.
type apiResponse struct {
	Parsed []apiUpdate `json:"parsed"`
}

// LatestQuote fetches the latest parsed price update for feedID.
func (c *Client) LatestQuote(ctx context.Context, feedID common.Hash) (domain.Quote, error) {
	params := url.Values{}
	params.Add("ids[]", feedID.Hex())
	params.Set("parsed", "true")

	endpoint := c.baseURL + "/v2/updates/price/latest?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("pyth: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("pyth: get latest price: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Quote{}, fmt.Errorf("pyth: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, fmt.Errorf("pyth: feed %s: %w", feedID.Hex(), domain.ErrFeedNotConfigured)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, fmt.Errorf("pyth: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.Quote{}, fmt.Errorf("pyth: decode response: %w", err)
	}
	if len(parsed.Parsed) == 0 {
		return domain.Quote{}, fmt.Errorf("pyth: feed %s: %w", feedID.Hex(), domain.ErrFeedNotConfigured)
	}

	p := parsed.Parsed[0].Price
	price, ok := new(big.Int).SetString(p.Price, 10)
	if !ok {
		return domain.Quote{}, fmt.Errorf("pyth: malformed price %q for feed %s", p.Price, feedID.Hex())
	}

	return domain.Quote{
		Price:       price,
		Expo:        p.Expo,
		PublishTime: time.Unix(p.PublishTime, 0).UTC(),
	}, nil
}
