package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c := NewClient(baseURL, nil, StaticToken("test-token"), logger)
	c.http.RetryMax = 0

	return c
}

func TestListFiles_FollowsPages(t *testing.T) {
	var pages []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "trashed=false", r.URL.Query().Get("q"))
		assert.Equal(t, "100", r.URL.Query().Get("maxResults"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		token := r.URL.Query().Get("pageToken")
		pages = append(pages, token)

		w.Header().Set("Content-Type", "application/json")

		if token == "" {
			fmt.Fprint(w, `{
				"nextPageToken": "page-2",
				"items": [
					{"id": "a", "title": "one.txt", "md5Checksum": "m1", "quotaBytesUsed": "100"},
					{"id": "b", "title": "two.txt", "md5Checksum": "m2", "quotaBytesUsed": "200"}
				]
			}`)

			return
		}

		fmt.Fprint(w, `{
			"items": [
				{"id": "c", "title": "three.txt", "md5Checksum": "m1", "quotaBytesUsed": "100"}
			]
		}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	files, err := c.ListFiles(context.Background(), "trashed=false", "nextPageToken,items(id,md5Checksum)")
	require.NoError(t, err)

	assert.Equal(t, []string{"", "page-2"}, pages)
	require.Len(t, files, 3)
	assert.Equal(t, "a", files[0].ID)
	assert.Equal(t, "c", files[2].ID)
	assert.Equal(t, int64(100), files[2].QuotaBytes())
}

func TestListFiles_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":401}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.ListFiles(context.Background(), "trashed=false", "items(id)")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestTrash(t *testing.T) {
	var trashed []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		trashed = append(trashed, r.URL.Path)

		fmt.Fprint(w, `{"id":"dupe-1"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	require.NoError(t, c.Trash(context.Background(), "dupe-1"))
	assert.Equal(t, []string{"/files/dupe-1/trash"}, trashed)
}

func TestTrash_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.Trash(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetModifiedDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/files/img-1", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("setModifiedDate"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2019-06-01T12:00:00.0Z", body["modifiedDate"])

		fmt.Fprint(w, `{"id":"img-1"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	require.NoError(t, c.SetModifiedDate(context.Background(), "img-1", "2019-06-01T12:00:00.0Z"))
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = StaticToken("").Token()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileQuotaBytes_Malformed(t *testing.T) {
	f := File{QuotaBytesUsed: "not-a-number"}
	assert.Equal(t, int64(0), f.QuotaBytes())

	empty := File{}
	assert.Equal(t, int64(0), empty.QuotaBytes())
}
