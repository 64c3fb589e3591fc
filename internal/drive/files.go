package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// pageSize is the maxResults value for file listing. The v2 API allows up
// to 1000; 100 keeps individual responses small.
const pageSize = 100

// File is a Drive v2 file resource, restricted to the fields this tool
// requests. Zero values mean the field was not requested or not present
// (folders and Google Docs have no md5Checksum, for example).
type File struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	MD5Checksum        string              `json:"md5Checksum"`
	QuotaBytesUsed     string              `json:"quotaBytesUsed"` // v2 serializes int64 as string
	AlternateLink      string              `json:"alternateLink"`
	ModifiedDate       string              `json:"modifiedDate"`
	ImageMediaMetadata *ImageMediaMetadata `json:"imageMediaMetadata,omitempty"`
}

// ImageMediaMetadata carries the EXIF capture date for image files.
type ImageMediaMetadata struct {
	Date string `json:"date"`
}

// QuotaBytes parses the stringly-typed quotaBytesUsed field.
// Returns 0 for absent or malformed values.
func (f *File) QuotaBytes() int64 {
	n, err := strconv.ParseInt(f.QuotaBytesUsed, 10, 64)
	if err != nil {
		return 0
	}

	return n
}

// fileListResponse is the JSON shape of a files.list page.
type fileListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Items         []File `json:"items"`
}

// modifiedDatePatch is the request body for SetModifiedDate.
type modifiedDatePatch struct {
	ModifiedDate string `json:"modifiedDate"`
}

// ListFiles fetches all files matching the given query, following
// nextPageToken until the listing is exhausted. fields restricts the
// response shape and should always include nextPageToken.
func (c *Client) ListFiles(ctx context.Context, query, fields string) ([]File, error) {
	var (
		files     []File
		pageToken string
	)

	for {
		q := url.Values{
			"q":          []string{query},
			"fields":     []string{fields},
			"maxResults": []string{strconv.Itoa(pageSize)},
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		resp, err := c.do(ctx, http.MethodGet, "/files", q, nil)
		if err != nil {
			return nil, err
		}

		var page fileListResponse
		decErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()

		if decErr != nil {
			return nil, fmt.Errorf("drive: decoding file list page: %w", decErr)
		}

		files = append(files, page.Items...)

		c.logger.Info("fetched file page",
			slog.Int("total", len(files)),
		)

		if page.NextPageToken == "" {
			return files, nil
		}

		pageToken = page.NextPageToken
	}
}

// Trash moves a file to the trash. The file stays recoverable from the
// Drive UI until the trash is emptied.
func (c *Client) Trash(ctx context.Context, fileID string) error {
	path := fmt.Sprintf("/files/%s/trash", url.PathEscape(fileID))

	resp, err := c.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Drain body to reuse connection.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("drive: draining trash response body: %w", drainErr)
	}

	c.logger.Debug("trashed file", slog.String("file_id", fileID))

	return nil
}

// SetModifiedDate patches a file's modifiedDate. setModifiedDate=true is
// required — without it the API silently ignores the field.
func (c *Client) SetModifiedDate(ctx context.Context, fileID, modifiedDate string) error {
	path := "/files/" + url.PathEscape(fileID)
	q := url.Values{"setModifiedDate": []string{"true"}}

	body, err := json.Marshal(modifiedDatePatch{ModifiedDate: modifiedDate})
	if err != nil {
		return fmt.Errorf("drive: marshaling modified date patch: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, path, q, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("drive: draining patch response body: %w", drainErr)
	}

	c.logger.Debug("patched modified date",
		slog.String("file_id", fileID),
		slog.String("modified_date", modifiedDate),
	)

	return nil
}
