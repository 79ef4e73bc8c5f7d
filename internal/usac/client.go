package usac

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Dataset is the tag recorded on every opportunity derived from its records.
const Dataset = "usac:open-data"

// Resource paths on the USAC open-data API, one per detector query.
const (
	resourceFRNStatus  = "/resource/frn-status.json"
	resourceC2Items    = "/resource/c2-line-items.json"
	resourceC2Budgets  = "/resource/c2-budget-tool.json"
	dateLayout         = "2006-01-02"
	defaultRecordLimit = 2000
)

// Client queries the USAC open-data API. Calls carry a bounded timeout and a
// small number of retries on transient failures; a still-failing call
// surfaces an error that detectors treat as an empty result set.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	log        zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://opendata.usac.org"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: 2,
		log:        log.With().Str("component", "usac").Logger(),
	}
}

// QueryOptions bound every dataset query.
type QueryOptions struct {
	States []string // optional state allowlist
	Limit  int      // result cap, defaulted when zero
}

// ExpiringContracts returns funded FRNs whose contract expires inside
// [from, to).
func (c *Client) ExpiringContracts(ctx context.Context, from, to time.Time, opts QueryOptions) ([]ContractRecord, error) {
	where := fmt.Sprintf("contract_expiry_date >= '%s' AND contract_expiry_date < '%s'",
		from.Format(dateLayout), to.Format(dateLayout))
	params := c.queryParams(where, opts)

	var records []ContractRecord
	if err := c.getJSON(ctx, resourceFRNStatus, params, &records); err != nil {
		return nil, fmt.Errorf("expiring contracts query: %w", err)
	}
	return records, nil
}

// EquipmentPurchases returns Category 2 equipment line items funded in or
// after sinceFundingYear.
func (c *Client) EquipmentPurchases(ctx context.Context, sinceFundingYear int, opts QueryOptions) ([]EquipmentRecord, error) {
	where := fmt.Sprintf("funding_year >= '%d'", sinceFundingYear)
	params := c.queryParams(where, opts)

	var records []EquipmentRecord
	if err := c.getJSON(ctx, resourceC2Items, params, &records); err != nil {
		return nil, fmt.Errorf("equipment purchases query: %w", err)
	}
	return records, nil
}

// BudgetBalances returns current-cycle Category 2 budget positions.
func (c *Client) BudgetBalances(ctx context.Context, opts QueryOptions) ([]BudgetRecord, error) {
	params := c.queryParams("", opts)

	var records []BudgetRecord
	if err := c.getJSON(ctx, resourceC2Budgets, params, &records); err != nil {
		return nil, fmt.Errorf("budget balances query: %w", err)
	}
	return records, nil
}

func (c *Client) queryParams(where string, opts QueryOptions) url.Values {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}

	clauses := []string{}
	if where != "" {
		clauses = append(clauses, where)
	}
	if len(opts.States) > 0 {
		quoted := make([]string, 0, len(opts.States))
		for _, s := range opts.States {
			quoted = append(quoted, "'"+strings.ToUpper(strings.TrimSpace(s))+"'")
		}
		clauses = append(clauses, fmt.Sprintf("state IN (%s)", strings.Join(quoted, ",")))
	}

	params := url.Values{}
	params.Set("$limit", fmt.Sprintf("%d", limit))
	if len(clauses) > 0 {
		params.Set("$where", strings.Join(clauses, " AND "))
	}
	return params
}

func shouldRetry(err error, statusCode int) bool {
	if err != nil {
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			return true
		}
		return false
	}
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) getJSON(ctx context.Context, resource string, params url.Values, out any) error {
	endpoint := c.baseURL + resource + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<uint(attempt-1))) * time.Millisecond
			jitter := time.Duration(rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
			c.log.Warn().Str("resource", resource).Int("attempt", attempt).Msg("Retrying USAC request")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if shouldRetry(err, 0) {
				continue
			}
			return fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			if shouldRetry(nil, resp.StatusCode) {
				lastErr = fmt.Errorf("status code %d", resp.StatusCode)
				continue
			}
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		decodeErr := json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if decodeErr != nil {
			return fmt.Errorf("decoding response: %w", decodeErr)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
