package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonathan/patchnotes/internal/fetch"
	"github.com/jonathan/patchnotes/internal/schemas"
	"github.com/jonathan/patchnotes/internal/types"
)

// DefaultCongressBaseURL is the api.congress.gov v3 root.
const DefaultCongressBaseURL = "https://api.congress.gov/v3/"

// congressPageSize is the largest limit the API accepts.
const congressPageSize = 250

// congressEndpoints maps each list endpoint to the plural key its response
// wraps results in. The endpoint path is singular, the key is not.
var congressEndpoints = map[string]string{
	"bill":      "bills",
	"law":       "laws",
	"amendment": "amendments",
	"summaries": "summaries",
	"congress":  "congresses",
	"member":    "members",
	"committee": "committees",
	"hearing":   "hearings",
	"treaty":    "treaties",
}

// congressKindEndpoints maps record kinds to the endpoint that serves them.
var congressKindEndpoints = map[types.Kind]string{
	types.KindBill: "bill",
}

// CongressOptions configures the Congress adapter.
type CongressOptions struct {
	BaseURL string
	APIKey  string
	// PageSize defaults to 250.
	PageSize int
	// MaxResults stops paging once this many results were requested. Zero means no cap.
	MaxResults int
	Client     *fetch.Client
}

// Congress fetches bills (and other list endpoints) from api.congress.gov,
// paging by offset until pagination.next is absent.
type Congress struct {
	baseURL    string
	apiKey     string
	pageSize   int
	maxResults int
	client     *fetch.Client
}

// NewCongress creates a Congress adapter.
func NewCongress(opts CongressOptions) *Congress {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultCongressBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = congressPageSize
	}
	if opts.Client == nil {
		opts.Client = fetch.NewClient(&fetch.Options{
			Timeout: fetch.DefaultTimeout,
			Rate:    rate.Every(time.Second / 2),
			Burst:   10,
		})
	}
	return &Congress{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		pageSize:   opts.PageSize,
		maxResults: opts.MaxResults,
		client:     opts.Client,
	}
}

// Name implements Adapter.
func (c *Congress) Name() string { return "congress" }

// Kinds implements Adapter.
func (c *Congress) Kinds() []types.Kind { return []types.Kind{types.KindBill} }

type congressPage struct {
	items []types.Record
	next  string
}

type congressPagination struct {
	Count int    `json:"count"`
	Next  string `json:"next"`
}

// FetchWindow implements Adapter.
func (c *Congress) FetchWindow(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	if err := supports(c, kind); err != nil {
		return nil, err
	}
	records, err := c.FetchEndpoint(ctx, congressKindEndpoints[kind], from, to)
	if err != nil {
		return nil, &FetchFailure{Source: c.Name(), Kind: kind, Cause: err}
	}
	if kind == types.KindBill {
		for i, r := range records {
			records[i] = flattenLatestAction(r)
		}
	}
	log.Printf("[congress] fetched %d %s records", len(records), kind)
	return records, nil
}

// FetchEndpoint lists every item of endpoint updated within [from, to].
// Unknown endpoints fail with UnsupportedKindError before any request is made.
func (c *Congress) FetchEndpoint(ctx context.Context, endpoint string, from, to time.Time) ([]types.Record, error) {
	key, ok := congressEndpoints[endpoint]
	if !ok {
		return nil, &types.UnsupportedKindError{Value: "congress:" + endpoint}
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid congress base URL: %w", err)
	}
	base = base.JoinPath(endpoint)

	fetchPage := func(ctx context.Context, offset int) (congressPage, error) {
		q := url.Values{}
		q.Set("api_key", c.apiKey)
		q.Set("format", "json")
		q.Set("limit", strconv.Itoa(c.pageSize))
		q.Set("offset", strconv.Itoa(offset))
		q.Set("fromDateTime", from.UTC().Format(dateTimeLayout))
		q.Set("toDateTime", to.UTC().Format(dateTimeLayout))
		u := *base
		u.RawQuery = q.Encode()

		var envelope map[string]json.RawMessage
		if err := c.client.GetJSON(ctx, u.String(), schemas.Congress, &envelope); err != nil {
			return congressPage{}, err
		}
		var pagination congressPagination
		if err := json.Unmarshal(envelope["pagination"], &pagination); err != nil {
			return congressPage{}, fmt.Errorf("failed to decode pagination: %w", err)
		}
		var items []types.Record
		if raw, ok := envelope[key]; ok {
			if err := json.Unmarshal(raw, &items); err != nil {
				return congressPage{}, fmt.Errorf("failed to decode %s: %w", key, err)
			}
		}
		return congressPage{items: items, next: pagination.Next}, nil
	}

	next := func(offset int, page congressPage) (int, bool) {
		if page.next == "" {
			return 0, false
		}
		offset += c.pageSize
		if c.maxResults > 0 && offset >= c.maxResults {
			return 0, false
		}
		return offset, true
	}

	return Collect(ctx, 0, fetchPage, next, func(p congressPage) []types.Record { return p.items })
}

// flattenLatestAction lifts latestAction.{text,actionDate} to the top level
// as action_text and action_date, the fields bills are keyed and dated by.
func flattenLatestAction(r types.Record) types.Record {
	action, ok := r["latestAction"].(map[string]any)
	if !ok {
		return r
	}
	out := r.Clone()
	if text, ok := action["text"]; ok {
		out["action_text"] = text
	}
	if date, ok := action["actionDate"]; ok {
		out["action_date"] = date
	}
	return out
}
