package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/patchnotes/internal/types"
)

func TestFederalRegister_FetchWindow_FollowsNextPageURL(t *testing.T) {
	var requests atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		switch r.URL.Query().Get("page") {
		case "":
			q := r.URL.Query()
			assert.Equal(t, "executive_order", q.Get("conditions[presidential_document_type]"))
			assert.Equal(t, "2024-03-01", q.Get("conditions[signing_date][gte]"))
			assert.Equal(t, "2024-03-02", q.Get("conditions[signing_date][lte]"))
			assert.Equal(t, "1000", q.Get("per_page"))
			assert.Contains(t, q["fields[]"], "signing_date")
			assert.Len(t, q["fields[]"], len(executiveOrderFields))
			fmt.Fprintf(w, `{"count":2,"total_pages":2,"next_page_url":%q,"results":[{"title":"EO 1","signing_date":"2024-03-01"}]}`,
				server.URL+"/documents.json?page=2")
		case "2":
			_, _ = w.Write([]byte(`{"count":2,"total_pages":2,"next_page_url":null,"results":[{"title":"EO 2","signing_date":"2024-03-02"}]}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer server.Close()

	f := NewFederalRegister(FederalRegisterOptions{BaseURL: server.URL + "/documents.json", Client: testClient()})
	records, err := f.FetchWindow(context.Background(), types.KindExecutiveOrder, windowFrom, windowTo)
	require.NoError(t, err)

	assert.Equal(t, int32(2), requests.Load())
	require.Len(t, records, 2)
	assert.Equal(t, "EO 1", records[0]["title"])
	assert.Equal(t, "EO 2", records[1]["title"])
}

func TestFederalRegister_FetchWindow_EmptyWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":0}`))
	}))
	defer server.Close()

	f := NewFederalRegister(FederalRegisterOptions{BaseURL: server.URL, Client: testClient()})
	records, err := f.FetchWindow(context.Background(), types.KindExecutiveOrder, windowFrom, windowTo)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFederalRegister_FetchWindow_UnsupportedKind(t *testing.T) {
	f := NewFederalRegister(FederalRegisterOptions{Client: testClient()})
	_, err := f.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)

	var kindErr *types.UnsupportedKindError
	require.ErrorAs(t, err, &kindErr)
}

func TestFederalRegister_FetchWindow_BadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	f := NewFederalRegister(FederalRegisterOptions{BaseURL: server.URL, Client: testClient()})
	_, err := f.FetchWindow(context.Background(), types.KindExecutiveOrder, windowFrom, windowTo)

	var failure *FetchFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "federal-register", failure.Source)
}
