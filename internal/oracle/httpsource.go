package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/decimal"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
)

var oracleLogger = logger.GetForComponent("oracle_source")

var (
	ErrFeedRequestFailed = errors.New("price feed request failed")
	ErrFeedResponse      = errors.New("price feed response is invalid")
)

const (
	TIMEOUT_SECONDS = 10
)

// feedResponse is the wire shape of one feed observation. Prices arrive as
// decimal strings to avoid float drift on the wire.
type feedResponse struct {
	FeedID        string `json:"feed_id"`
	Price         string `json:"price"` // empty when the feed has no valid price
	SmoothedPrice string `json:"smoothed_price"`
}

// HTTPSource fetches feed observations from a JSON price endpoint.
// GET {endpoint}/feeds/{feedID} must return a feedResponse.
type HTTPSource struct {
	endpoint string
	client   http.Client
}

// NewHTTPSource creates a source against the given base endpoint.
func NewHTTPSource(endpoint string) (*HTTPSource, error) {
	if endpoint == "" {
		return nil, errors.Join(ErrFeedRequestFailed, errors.New("endpoint is empty"))
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.Join(ErrFeedRequestFailed, fmt.Errorf("invalid endpoint %s: %w", endpoint, err))
	}
	return &HTTPSource{
		endpoint: endpoint,
		client:   http.Client{Timeout: TIMEOUT_SECONDS * time.Second},
	}, nil
}

// Latest fetches and validates the newest observation for feedID.
func (s *HTTPSource) Latest(ctx context.Context, feedID string) (PriceUpdate, error) {
	if feedID == "" {
		return PriceUpdate{}, errors.Join(ErrFeedRequestFailed, errors.New("feed ID is empty"))
	}

	reqURL := fmt.Sprintf("%s/feeds/%s", s.endpoint, url.PathEscape(feedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return PriceUpdate{}, errors.Join(ErrFeedRequestFailed, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		oracleLogger.Error().Err(err).Str("feedId", feedID).Msg("Price feed request failed")
		return PriceUpdate{}, errors.Join(ErrFeedRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PriceUpdate{}, errors.Join(ErrFeedRequestFailed, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("failed to read response body: %w", err))
	}
	if len(body) == 0 {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, errors.New("response body is empty"))
	}

	var raw feedResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		oracleLogger.Error().Err(err).Str("body", string(body)).Msg("Failed to unmarshal feed response")
		return PriceUpdate{}, errors.Join(ErrFeedResponse, err)
	}

	return parseFeedResponse(raw, feedID)
}

// parseFeedResponse validates a wire observation and converts it to the core
// tuple. An empty spot price is a legal "no valid price" report; everything
// else malformed is a hard failure.
func parseFeedResponse(raw feedResponse, requestedFeedID string) (PriceUpdate, error) {
	if raw.FeedID == "" {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, errors.New("feed ID missing from response"))
	}
	if raw.FeedID != requestedFeedID {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("requested feed %s, got %s", requestedFeedID, raw.FeedID))
	}
	if raw.SmoothedPrice == "" {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, errors.New("smoothed price missing from response"))
	}

	smoothed, err := decimal.FromString(raw.SmoothedPrice)
	if err != nil {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("invalid smoothed price %q: %w", raw.SmoothedPrice, err))
	}
	if !smoothed.IsPositive() {
		return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("smoothed price must be positive: %s", raw.SmoothedPrice))
	}

	update := PriceUpdate{SmoothedPrice: smoothed, FeedID: raw.FeedID}

	if raw.Price != "" {
		price, err := decimal.FromString(raw.Price)
		if err != nil {
			return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("invalid price %q: %w", raw.Price, err))
		}
		if !price.IsPositive() {
			return PriceUpdate{}, errors.Join(ErrFeedResponse, fmt.Errorf("price must be positive: %s", raw.Price))
		}
		update.Price = &price
	}

	oracleLogger.Debug().
		Str("feedId", update.FeedID).
		Bool("hasPrice", update.HasPrice()).
		Str("smoothedPrice", update.SmoothedPrice.String()).
		Msg("Fetched feed observation")

	return update, nil
}
