package sources

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/jonathan/patchnotes/internal/fetch"
	"github.com/jonathan/patchnotes/internal/schemas"
	"github.com/jonathan/patchnotes/internal/types"
)

// DefaultRegulationsBaseURL is the regulations.gov v4 root.
const DefaultRegulationsBaseURL = "https://api.regulations.gov/v4/"

// regulationsPageSize is the largest page[size] the API accepts.
const regulationsPageSize = 250

// regulationsDocumentTypes maps kinds to the documentType filter value.
var regulationsDocumentTypes = map[types.Kind]string{
	types.KindRule:         "Rule",
	types.KindProposedRule: "Proposed Rule",
}

// RegulationsOptions configures the Regulations.gov adapter.
type RegulationsOptions struct {
	BaseURL  string
	APIKey   string
	PageSize int
	// DetailConcurrency bounds the per-page detail fan-out. Zero means one
	// goroutine per document on the page.
	DetailConcurrency int
	Client            *fetch.Client
}

// Regulations fetches rules and proposed rules by posted date. The list
// endpoint lacks file formats and the CFR part, so every document on a page is
// followed by a detail request; those run concurrently, and the next page is
// requested only after the whole page is complete.
type Regulations struct {
	baseURL           string
	apiKey            string
	pageSize          int
	detailConcurrency int
	client            *fetch.Client
}

// NewRegulations creates a Regulations.gov adapter.
func NewRegulations(opts RegulationsOptions) *Regulations {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultRegulationsBaseURL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = regulationsPageSize
	}
	if opts.Client == nil {
		opts.Client = fetch.NewClient(&fetch.Options{
			Timeout: fetch.DefaultTimeout,
			Rate:    rate.Limit(5),
			Burst:   25,
		})
	}
	return &Regulations{
		baseURL:           opts.BaseURL,
		apiKey:            opts.APIKey,
		pageSize:          opts.PageSize,
		detailConcurrency: opts.DetailConcurrency,
		client:            opts.Client,
	}
}

// Name implements Adapter.
func (r *Regulations) Name() string { return "regulations" }

// Kinds implements Adapter.
func (r *Regulations) Kinds() []types.Kind {
	return []types.Kind{types.KindRule, types.KindProposedRule}
}

type regulationsSummary struct {
	ID         string `json:"id"`
	Attributes struct {
		DocumentType string `json:"documentType"`
		DocketID     string `json:"docketId"`
		Title        string `json:"title"`
		PostedDate   string `json:"postedDate"`
		AgencyID     string `json:"agencyId"`
	} `json:"attributes"`
	Links struct {
		Self string `json:"self"`
	} `json:"links"`
}

type regulationsList struct {
	Data []regulationsSummary `json:"data"`
	Meta struct {
		HasNextPage bool `json:"hasNextPage"`
	} `json:"meta"`
}

type regulationsDetail struct {
	Data struct {
		Attributes struct {
			CFRPart     any `json:"cfrPart"`
			FileFormats []struct {
				FileURL string `json:"fileUrl"`
				Format  string `json:"format"`
			} `json:"fileFormats"`
		} `json:"attributes"`
	} `json:"data"`
}

type regulationsPage struct {
	records []types.Record
	hasNext bool
}

// FetchWindow implements Adapter.
func (r *Regulations) FetchWindow(ctx context.Context, kind types.Kind, from, to time.Time) ([]types.Record, error) {
	if err := supports(r, kind); err != nil {
		return nil, err
	}

	base, err := url.Parse(r.baseURL)
	if err != nil {
		return nil, &FetchFailure{Source: r.Name(), Kind: kind, Cause: fmt.Errorf("invalid regulations base URL: %w", err)}
	}
	base = base.JoinPath("documents")

	fetchPage := func(ctx context.Context, pageNum int) (regulationsPage, error) {
		q := url.Values{}
		q.Set("api_key", r.apiKey)
		q.Set("filter[documentType]", regulationsDocumentTypes[kind])
		q.Set("filter[postedDate][ge]", from.UTC().Format(dateLayout))
		q.Set("filter[postedDate][le]", to.UTC().Format(dateLayout))
		q.Set("page[size]", strconv.Itoa(r.pageSize))
		q.Set("page[number]", strconv.Itoa(pageNum))
		u := *base
		u.RawQuery = q.Encode()

		var list regulationsList
		if err := r.client.GetJSON(ctx, u.String(), schemas.RegulationsList, &list); err != nil {
			return regulationsPage{}, err
		}
		records, err := r.completePage(ctx, list.Data)
		if err != nil {
			return regulationsPage{}, err
		}
		return regulationsPage{records: records, hasNext: list.Meta.HasNextPage}, nil
	}
	next := func(pageNum int, page regulationsPage) (int, bool) {
		return pageNum + 1, page.hasNext
	}

	records, err := Collect(ctx, 1, fetchPage, next, func(p regulationsPage) []types.Record { return p.records })
	if err != nil {
		return nil, &FetchFailure{Source: r.Name(), Kind: kind, Cause: err}
	}
	log.Printf("[regulations] fetched %d %s records", len(records), kind)
	return records, nil
}

// completePage fetches the detail of every summary concurrently and returns
// the records in page order. Any failed detail fails the page.
func (r *Regulations) completePage(ctx context.Context, summaries []regulationsSummary) ([]types.Record, error) {
	records := make([]types.Record, len(summaries))

	g, gCtx := errgroup.WithContext(ctx)
	if r.detailConcurrency > 0 {
		g.SetLimit(r.detailConcurrency)
	}
	for i, summary := range summaries {
		g.Go(func() error {
			detail, err := r.fetchDetail(gCtx, summary.Links.Self)
			if err != nil {
				return fmt.Errorf("detail for %s: %w", summary.ID, err)
			}
			records[i] = buildRegulationRecord(summary, detail)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Regulations) fetchDetail(ctx context.Context, self string) (*regulationsDetail, error) {
	u, err := url.Parse(self)
	if err != nil {
		return nil, fmt.Errorf("invalid detail link %q: %w", self, err)
	}
	q := u.Query()
	q.Set("api_key", r.apiKey)
	u.RawQuery = q.Encode()

	var detail regulationsDetail
	if err := r.client.GetJSON(ctx, u.String(), schemas.RegulationsDetail, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// buildRegulationRecord merges list and detail attributes. The first file
// format is the PDF and the second the HTML rendition when present.
func buildRegulationRecord(s regulationsSummary, d *regulationsDetail) types.Record {
	var pdfURL, htmURL any
	formats := d.Data.Attributes.FileFormats
	if len(formats) > 0 {
		pdfURL = formats[0].FileURL
	}
	if len(formats) > 1 {
		htmURL = formats[1].FileURL
	}
	return types.Record{
		"docType":    s.Attributes.DocumentType,
		"id":         s.ID,
		"docketId":   s.Attributes.DocketID,
		"title":      s.Attributes.Title,
		"postedDate": s.Attributes.PostedDate,
		"agencyId":   s.Attributes.AgencyID,
		"cfrPart":    d.Data.Attributes.CFRPart,
		"pdfUrl":     pdfURL,
		"htmUrl":     htmURL,
	}
}
