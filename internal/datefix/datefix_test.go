package datefix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/driveup/internal/drive"
)

func TestParseEXIFDate(t *testing.T) {
	parsed, err := ParseEXIFDate("2019:06:01 12:30:45")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 6, 1, 12, 30, 45, 0, time.UTC), parsed)

	_, err = ParseEXIFDate("June 1st 2019")
	require.Error(t, err)
}

func TestFormatModifiedDate(t *testing.T) {
	got := FormatModifiedDate(time.Date(2019, 6, 1, 12, 30, 45, 0, time.UTC))
	assert.Equal(t, "2019-06-01T12:30:45.0Z", got)
}

func TestPlan(t *testing.T) {
	files := []drive.File{
		{
			// Needs a patch: modifiedDate is the upload time, not the capture time.
			ID:                 "img-1",
			AlternateLink:      "https://drive.example/img-1",
			ModifiedDate:       "2024-01-15T09:00:00.0Z",
			ImageMediaMetadata: &drive.ImageMediaMetadata{Date: "2019:06:01 12:30:45"},
		},
		{
			// Already correct — skipped.
			ID:                 "img-2",
			ModifiedDate:       "2019-06-01T12:30:45.0Z",
			ImageMediaMetadata: &drive.ImageMediaMetadata{Date: "2019:06:01 12:30:45"},
		},
		{
			// No EXIF metadata — skipped.
			ID:           "img-3",
			ModifiedDate: "2024-01-15T09:00:00.0Z",
		},
		{
			// Unparseable EXIF date — skipped.
			ID:                 "img-4",
			ModifiedDate:       "2024-01-15T09:00:00.0Z",
			ImageMediaMetadata: &drive.ImageMediaMetadata{Date: "unknown"},
		},
		{
			// Empty EXIF date — skipped.
			ID:                 "img-5",
			ImageMediaMetadata: &drive.ImageMediaMetadata{},
		},
	}

	patches := Plan(files)
	require.Len(t, patches, 1)
	assert.Equal(t, "img-1", patches[0].FileID)
	assert.Equal(t, "2019-06-01T12:30:45.0Z", patches[0].ModifiedDate)
	assert.Equal(t, "https://drive.example/img-1", patches[0].AlternateURL)
}

func TestPlan_Empty(t *testing.T) {
	assert.Empty(t, Plan(nil))
}
