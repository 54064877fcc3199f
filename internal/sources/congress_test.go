package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/patchnotes/internal/fetch"
	"github.com/jonathan/patchnotes/internal/types"
)

var (
	windowFrom = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	windowTo   = time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)
)

func testClient() *fetch.Client {
	return fetch.NewClient(nil)
}

func TestCongress_FetchWindow_FollowsEveryPage(t *testing.T) {
	const pages = 3
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/bill", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("fromDateTime"))
		assert.Equal(t, "2024-03-02T12:00:00Z", r.URL.Query().Get("toDateTime"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := offset / 2
		next := ""
		if page < pages-1 {
			next = fmt.Sprintf("https://api.congress.gov/v3/bill?offset=%d", offset+2)
		}
		fmt.Fprintf(w, `{"pagination":{"count":6,"next":%q},"bills":[
			{"title":"Bill %d-a","latestAction":{"text":"Introduced","actionDate":"2024-03-01"}},
			{"title":"Bill %d-b","latestAction":{"text":"Passed","actionDate":"2024-03-02"}}
		]}`, next, page, page)
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, APIKey: "key", PageSize: 2, Client: testClient()})
	records, err := c.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)
	require.NoError(t, err)

	assert.Equal(t, int32(pages), requests.Load())
	require.Len(t, records, 6)
	assert.Equal(t, "Bill 0-a", records[0]["title"])
	assert.Equal(t, "Introduced", records[0]["action_text"])
	assert.Equal(t, "2024-03-01", records[0]["action_date"])
	assert.Equal(t, "Bill 2-b", records[5]["title"])
}

func TestCongress_FetchWindow_NullNextStops(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"pagination":{"count":1,"next":null},"bills":[{"title":"Only"}]}`))
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, Client: testClient()})
	records, err := c.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)
	require.NoError(t, err)
	assert.Equal(t, int32(1), requests.Load())
	require.Len(t, records, 1)
	_, flattened := records[0]["action_text"]
	assert.False(t, flattened)
}

func TestCongress_FetchWindow_MaxResults(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte(`{"pagination":{"next":"more"},"bills":[{"title":"a"},{"title":"b"}]}`))
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, PageSize: 2, MaxResults: 4, Client: testClient()})
	records, err := c.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)
	require.NoError(t, err)
	assert.Equal(t, int32(2), requests.Load())
	assert.Len(t, records, 4)
}

func TestCongress_FetchWindow_UnsupportedKind(t *testing.T) {
	c := NewCongress(CongressOptions{BaseURL: "http://127.0.0.1:1", Client: testClient()})
	_, err := c.FetchWindow(context.Background(), types.KindRule, windowFrom, windowTo)
	require.Error(t, err)

	var kindErr *types.UnsupportedKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "congress:regulations", kindErr.Value)
}

func TestCongress_FetchEndpoint_UnknownEndpoint(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, Client: testClient()})
	_, err := c.FetchEndpoint(context.Background(), "nomination", windowFrom, windowTo)

	var kindErr *types.UnsupportedKindError
	require.ErrorAs(t, err, &kindErr)
	assert.Equal(t, "congress:nomination", kindErr.Value)
	assert.Zero(t, requests.Load())
}

func TestCongress_FetchEndpoint_PluralKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/treaty", r.URL.Path)
		_, _ = w.Write([]byte(`{"pagination":{},"treaties":[{"number":1},{"number":2}]}`))
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, Client: testClient()})
	records, err := c.FetchEndpoint(context.Background(), "treaty", windowFrom, windowTo)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCongress_FetchWindow_PageFailure(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"pagination":{"next":"more"},"bills":[{"title":"a"}]}`))
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, PageSize: 1, Client: testClient()})
	records, err := c.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)
	require.Error(t, err)
	assert.Nil(t, records)

	var failure *FetchFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "congress", failure.Source)
	assert.Equal(t, types.KindBill, failure.Kind)

	var fetchErr *fetch.Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
}

func TestCongress_FetchWindow_SchemaMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"bills":[]}`))
	}))
	defer server.Close()

	c := NewCongress(CongressOptions{BaseURL: server.URL, Client: testClient()})
	_, err := c.FetchWindow(context.Background(), types.KindBill, windowFrom, windowTo)

	var failure *FetchFailure
	require.ErrorAs(t, err, &failure)
	assert.Contains(t, err.Error(), "pagination")
}

func TestFlattenLatestAction(t *testing.T) {
	in := types.Record{"title": "T", "latestAction": map[string]any{"text": "Signed", "actionDate": "2024-01-02"}}
	out := flattenLatestAction(in)

	assert.Equal(t, "Signed", out["action_text"])
	assert.Equal(t, "2024-01-02", out["action_date"])
	_, mutated := in["action_text"]
	assert.False(t, mutated)
}
