package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-aggregator/extractor"
	"product-aggregator/internal/types"
)

type fakeSearcher struct {
	got     types.Query
	results []types.ProductRecord
	err     error
}

func (f *fakeSearcher) Submit(ctx context.Context, q types.Query) ([]types.ProductRecord, error) {
	f.got = q
	return f.results, f.err
}

type fakeComparer struct {
	result extractor.Comparison
	err    error
}

func (f *fakeComparer) Compare(ctx context.Context, items []extractor.CompareItem) (extractor.Comparison, error) {
	return f.result, f.err
}

type fakeResponder struct{ got string }

func (f *fakeResponder) Respond(ctx context.Context, query string) string {
	f.got = query
	return "answer to " + query
}

type fakeFetcher struct {
	gotURL      string
	body        []byte
	contentType string
	err         error
}

func (f *fakeFetcher) GetWithType(ctx context.Context, rawURL string) ([]byte, string, error) {
	f.gotURL = rawURL
	return f.body, f.contentType, f.err
}

type fixture struct {
	searcher  *fakeSearcher
	comparer  *fakeComparer
	assistant *fakeResponder
	fetcher   *fakeFetcher
	handler   http.Handler
}

func newFixture() *fixture {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		searcher:  &fakeSearcher{},
		comparer:  &fakeComparer{},
		assistant: &fakeResponder{},
		fetcher:   &fakeFetcher{},
	}
	f.handler = NewServer(f.searcher, f.comparer, f.assistant, f.fetcher, types.DefaultConfig(), logger).Routes()
	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestSearch_Success(t *testing.T) {
	f := newFixture()
	price := 499.0
	f.searcher.results = []types.ProductRecord{{Name: "Shoe", Price: &price, Link: "https://a.test/1", SourceSite: types.SiteAmazon}}

	rec := f.do(http.MethodPost, "/search", `{"query":"shoes","platforms":["Amazon","flipkart"],"page":2,"limit":5}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, []types.SiteID{types.SiteAmazon, types.SiteFlipkart}, f.searcher.got.Sites)
	assert.Equal(t, types.PageParams{Page: 2, Limit: 5}, f.searcher.got.Params)

	var got []map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "Shoe", got[0]["name"])
	assert.Equal(t, 499.0, got[0]["price"])
	assert.Equal(t, "amazon", got[0]["platform"])
	assert.Nil(t, got[0]["reviewRating"])
}

func TestSearch_EmptyResultsIsEmptyArray(t *testing.T) {
	rec := newFixture().do(http.MethodPost, "/search", `{"query":"zzzz"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSearch_BadRequests(t *testing.T) {
	tests := map[string]string{
		"not json":         `{"query":`,
		"blank query":      `{"query":"  "}`,
		"unknown platform": `{"query":"tv","platforms":["ebay"]}`,
		"negative page":    `{"query":"tv","page":-1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			rec := f.do(http.MethodPost, "/search", body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
			assert.Empty(t, f.searcher.got.Text, "searcher must not run")
		})
	}
}

func TestSearch_Aborted(t *testing.T) {
	for _, cause := range []error{types.ErrSuperseded, types.ErrClientGone, types.ErrShutdown} {
		f := newFixture()
		f.searcher.err = cause

		rec := f.do(http.MethodPost, "/search", `{"query":"shoes"}`)

		assert.Equal(t, StatusClientClosedRequest, rec.Code)
		assert.Contains(t, decodeError(t, rec), "aborted")
	}
}

func TestSearch_InternalError(t *testing.T) {
	f := newFixture()
	f.searcher.err = errors.New("disk on fire")

	rec := f.do(http.MethodPost, "/search", `{"query":"shoes"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeError(t, rec))
}

func TestSearch_MethodNotAllowed(t *testing.T) {
	rec := newFixture().do(http.MethodGet, "/search", "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSuggestions(t *testing.T) {
	f := newFixture()
	f.fetcher.body = []byte(`{"suggestions":[{"value":"iphone 15"}]}`)
	f.fetcher.contentType = "application/json;charset=UTF-8"

	rec := f.do(http.MethodGet, "/suggestions?query=iphone+1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json;charset=UTF-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"suggestions":[{"value":"iphone 15"}]}`, rec.Body.String())
	assert.True(t, strings.HasSuffix(f.fetcher.gotURL, "prefix=iphone+1"), f.fetcher.gotURL)
}

func TestSuggestions_Errors(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/suggestions?query=%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.fetcher.err = &types.TransientFetchError{URL: "https://completion.test", StatusCode: 503}
	rec = f.do(http.MethodGet, "/suggestions?query=tv", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAssistant(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/ai-response", `{"query":"best budget phone"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"answer to best budget phone"}`, rec.Body.String())

	rec = f.do(http.MethodPost, "/ai-response", `not json`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", f.assistant.got)
}

func TestCompare(t *testing.T) {
	f := newFixture()
	f.comparer.result = extractor.Comparison{"brand": {"1": "Acme", "2": "-"}}

	rec := f.do(http.MethodPost, "/compare", `{"products":[{"platform":"amazon","link":"a"},{"platform":"flipkart","link":"b"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"brand":{"1":"Acme","2":"-"}}`, rec.Body.String())
}

func TestCompare_Errors(t *testing.T) {
	two := `{"products":[{"platform":"amazon","link":"a"},{"platform":"flipkart","link":"b"}]}`
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"one product", `{"products":[{"platform":"amazon","link":"a"}]}`, nil, http.StatusBadRequest},
		{"validation", two, &types.ValidationError{Field: "platform", Reason: "unknown"}, http.StatusBadRequest},
		{"no details", two, types.ErrNoResults, http.StatusNotFound},
		{"aborted", two, types.ErrClientGone, StatusClientClosedRequest},
		{"internal", two, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.comparer.err = tt.err

			rec := f.do(http.MethodPost, "/compare", tt.body)

			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/search", bytes.NewReader(nil))
	rec := httptest.NewRecorder()

	newFixture().handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
