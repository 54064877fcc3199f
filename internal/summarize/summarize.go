// Package summarize produces plain-language summaries of stored records with
// an LLM. Document text is fetched from the record's HTML rendition when one
// exists; otherwise the title alone is summarized.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/patchnotes/internal/llm"
	"github.com/jonathan/patchnotes/internal/prompts"
	"github.com/jonathan/patchnotes/internal/types"
)

// NoSummary is returned when the model produces no text.
const NoSummary = "No summary available."

// maxDocumentChars caps the document text placed in a prompt.
const maxDocumentChars = 20000

// textURLFields lists record fields holding an HTML rendition, in preference order.
var textURLFields = []string{"htmUrl", "html_url", "body_html_url"}

// kindNouns names each kind in prompts.
var kindNouns = map[types.Kind]string{
	types.KindBill:           "congressional bill",
	types.KindExecutiveOrder: "executive order",
	types.KindRule:           "federal regulation",
	types.KindProposedRule:   "proposed federal regulation",
}

// ErrRecordNotFound is returned when the requested record is not stored.
var ErrRecordNotFound = errors.New("record not found")

// Lookup loads stored records by id.
type Lookup interface {
	ByIDs(ctx context.Context, kind types.Kind, ids []uuid.UUID) ([]types.Record, error)
}

// TextFetcher returns the main text of an HTML page.
type TextFetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Summarizer builds prompts and calls the model.
type Summarizer struct {
	client llm.Client
	lookup Lookup
	text   TextFetcher
}

// New creates a Summarizer. text may be nil to summarize titles only.
func New(client llm.Client, lookup Lookup, text TextFetcher) *Summarizer {
	return &Summarizer{client: client, lookup: lookup, text: text}
}

// Record summarizes the stored record id of the given kind.
func (s *Summarizer) Record(ctx context.Context, kind types.Kind, id uuid.UUID) (string, error) {
	records, err := s.lookup.ByIDs(ctx, kind, []uuid.UUID{id})
	if err != nil {
		return "", fmt.Errorf("failed to load record: %w", err)
	}
	if len(records) == 0 {
		return "", ErrRecordNotFound
	}
	record := records[0]

	text := s.documentText(ctx, record)
	prompt, err := prompts.Render("summarize.json", "record", map[string]string{
		"Kind":  kindNouns[kind],
		"Title": record.String("title"),
		"Date":  recordDate(record, kind),
		"Text":  text,
	})
	if err != nil {
		return "", err
	}
	tier := llm.TierLite
	if text != "" {
		tier = llm.TierStandard
	}
	return s.generate(ctx, prompt, tier)
}

// Prompt summarizes caller-supplied text. A bare title is wrapped in the
// title prompt; longer text is sent as given.
func (s *Summarizer) Prompt(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("prompt is empty")
	}
	prompt := text
	if !strings.Contains(text, "\n") && len(text) <= 300 {
		rendered, err := prompts.Render("summarize.json", "title", map[string]string{"Title": text})
		if err != nil {
			return "", err
		}
		prompt = rendered
	}
	return s.generate(ctx, prompt, llm.TierLite)
}

func (s *Summarizer) generate(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	out, err := s.client.GenerateContent(ctx, prompt, tier)
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return NoSummary, nil
	}
	return out, nil
}

// documentText fetches the record's HTML rendition. Failures degrade to a
// title-only prompt.
func (s *Summarizer) documentText(ctx context.Context, record types.Record) string {
	if s.text == nil {
		return ""
	}
	for _, field := range textURLFields {
		url := record.String(field)
		if url == "" {
			continue
		}
		text, err := s.text.Text(ctx, url)
		if err != nil {
			log.Printf("[summarize] warning: failed to fetch document text: %v", err)
			return ""
		}
		return truncate(text, maxDocumentChars)
	}
	return ""
}

func recordDate(record types.Record, kind types.Kind) string {
	field := kind.Info().DateField
	if t, ok := record.Time(field); ok {
		return t.UTC().Format(time.DateOnly)
	}
	return record.String(field)
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
