package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/typeahead/go-typeahead/apierror"
	"github.com/typeahead/go-typeahead/search/client"
	"github.com/typeahead/go-typeahead/search/model"
)

func newSearchServer(t *testing.T, apiKey string, resp *model.SearchResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/search", req.URL.Path)
		if apiKey != "" {
			require.Equal(t, apiKey, req.URL.Query().Get("apikey"))
		}
		data, err := model.MarshalSearchResponse(resp)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
}

func TestSearch(t *testing.T) {
	want := &model.SearchResponse{
		Results: []model.Item{
			{ID: "tt0109830", Title: "Forrest Gump", Year: "1994"},
			{ID: "tt0109831", Title: "Forrest Warrior", Year: "1996"},
		},
		Total: 2,
	}
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotQuery = req.URL.Query().Get("q")
		require.Equal(t, "sekret", req.URL.Query().Get("apikey"))
		data, err := model.MarshalSearchResponse(want)
		require.NoError(t, err)
		w.Write(data)
	}))
	defer server.Close()

	c, err := client.New(server.URL, client.WithAPIKey("sekret"))
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), "forrest")
	require.NoError(t, err)
	require.Equal(t, "forrest", gotQuery)
	require.Equal(t, want, resp)
}

func TestSearchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "no matches", http.StatusNotFound)
	}))
	defer server.Close()

	c, err := client.New(server.URL)
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), "nosuchthing")
	require.NoError(t, err)
	require.Empty(t, resp.Results)
	require.Zero(t, resp.Total)
}

func TestSearchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "database on fire", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := client.New(server.URL)
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "anything")
	require.Error(t, err)

	var ae *apierror.Error
	require.True(t, errors.As(err, &ae))
	require.Equal(t, http.StatusInternalServerError, ae.Status())
	require.Contains(t, err.Error(), "database on fire")
}

func TestSearchFallbackEndpoint(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	good := newSearchServer(t, "", &model.SearchResponse{
		Results: []model.Item{{Title: "backup result"}},
		Total:   1,
	})
	defer good.Close()

	c, err := client.New(bad.URL, client.WithExtraEndpoints(good.URL))
	require.NoError(t, err)

	resp, err := c.Search(context.Background(), "whatever")
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "backup result", resp.Results[0].Title)
}

func TestSearchAllEndpointsFail(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	bad1 := httptest.NewServer(handler)
	defer bad1.Close()
	bad2 := httptest.NewServer(handler)
	defer bad2.Close()

	c, err := client.New(bad1.URL, client.WithExtraEndpoints(bad2.URL))
	require.NoError(t, err)

	_, err = c.Search(context.Background(), "whatever")
	require.Error(t, err)

	var ae *apierror.Error
	require.True(t, errors.As(err, &ae))
	require.Equal(t, http.StatusBadGateway, ae.Status())
}

func TestSearchCanceled(t *testing.T) {
	server := newSearchServer(t, "", &model.SearchResponse{})
	defer server.Close()

	c, err := client.New(server.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Search(ctx, "whatever")
	require.Error(t, err)
	require.True(t, apierror.IsCancellation(err))
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := client.New("ftp://example.com")
	require.ErrorContains(t, err, "http or https scheme")

	_, err = client.New("http://good.example.com", client.WithExtraEndpoints("://missing-scheme"))
	require.Error(t, err)
}
