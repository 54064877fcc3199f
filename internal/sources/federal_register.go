package sources

import (
	"context"
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

// DefaultFederalRegisterBaseURL is the documents search endpoint.
const DefaultFederalRegisterBaseURL = "https://www.federalregister.gov/api/v1/documents.json"

// federalRegisterPageSize is the per_page ceiling the API honours.
const federalRegisterPageSize = 1000

// executiveOrderFields are requested explicitly; the API returns only these.
var executiveOrderFields = []string{
	"citation",
	"document_number",
	"end_page",
	"html_url",
	"pdf_url",
	"signing_date",
	"title",
	"executive_order_number",
	"not_received_for_publication",
	"body_html_url",
	"json_url",
}

// FederalRegisterOptions configures the Federal Register adapter.
type FederalRegisterOptions struct {
	BaseURL  string
	PageSize int
	Client   *fetch.Client
}

// FederalRegister fetches executive orders by signing date, following
// next_page_url until the response omits it.
type FederalRegister struct {
	baseURL  string
	pageSize int
	client   *fetch.Client
}

// NewFederalRegister creates a Federal Register adapter.
func NewFederalRegister(opts FederalRegisterOptions) *FederalRegister {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultFederalRegisterBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = federalRegisterPageSize
	}
	if opts.Client == nil {
		opts.Client = fetch.NewClient(&fetch.Options{
			Timeout: fetch.DefaultTimeout,
			Rate:    rate.Every(time.Second / 2),
			Burst:   10,
		})
	}
	return &FederalRegister{
		baseURL:  opts.BaseURL,
		pageSize: opts.PageSize,
		client:   opts.Client,
	}
}

// Name implements Adapter.
func (f *FederalRegister) Name() string { return "federal-register" }

// Kinds implements Adapter.
func (f *FederalRegister) Kinds() []types.Kind { return []types.Kind{types.KindExecutiveOrder} }

type federalRegisterPage struct {
	Count       int            `json:"count"`
	TotalPages  int            `json:"total_pages"`
	NextPageURL string         `json:"next_page_url"`
	Results     []types.Record `json:"results"`
}

// FetchWindow implements Adapter.
func (f *FederalRegister) FetchWindow(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	if err := supports(f, kind); err != nil {
		return nil, err
	}

	start, err := f.searchURL(from, to)
	if err != nil {
		return nil, &FetchFailure{Source: f.Name(), Kind: kind, Cause: err}
	}

	fetchPage := func(ctx context.Context, pageURL string) (federalRegisterPage, error) {
		var page federalRegisterPage
		err := f.client.GetJSON(ctx, pageURL, schemas.FederalRegister, &page)
		return page, err
	}
	next := func(_ string, page federalRegisterPage) (string, bool) {
		return page.NextPageURL, page.NextPageURL != ""
	}

	records, err := Collect(ctx, start, fetchPage, next, func(p federalRegisterPage) []types.Record { return p.Results })
	if err != nil {
		return nil, &FetchFailure{Source: f.Name(), Kind: kind, Cause: err}
	}
	log.Printf("[federal-register] fetched %d %s records", len(records), kind)
	return records, nil
}

// searchURL builds the first-page query. fields[] must be repeated, once per field.
func (f *FederalRegister) searchURL(from, to time.Time) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid federal register base URL: %w", err)
	}
	q := url.Values{}
	q.Set("conditions[correction]", "0")
	q.Set("conditions[presidential_document_type]", "executive_order")
	q.Set("conditions[signing_date][gte]", from.UTC().Format(dateLayout))
	q.Set("conditions[signing_date][lte]", to.UTC().Format(dateLayout))
	q.Set("conditions[type][]", "PRESDOCU")
	q.Set("include_pre_1994_docs", "true")
	q.Set("order", "executive_order")
	q.Set("per_page", strconv.Itoa(f.pageSize))
	for _, field := range executiveOrderFields {
		q.Add("fields[]", field)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
