// Package datefix plans modifiedDate corrections for photos whose Drive
// timestamps drifted from their EXIF capture dates (bulk re-uploads stamp
// every photo with the upload time).
package datefix

import (
	"fmt"
	"time"

	"github.com/tonimelisma/driveup/internal/drive"
)

// Query selects every non-trashed JPEG.
const Query = `trashed=false and mimeType="image/jpeg"`

// Fields is the files.list projection needed for date planning.
const Fields = "nextPageToken,items(id),items(imageMediaMetadata/date,modifiedDate,createdDate,modifiedByMeDate,alternateLink)"

// exifLayout is the EXIF DateTime format: colon-separated date.
const exifLayout = "2006:01:02 15:04:05"

// driveLayout is the second-resolution prefix of the API's timestamp
// format; FormatModifiedDate appends the fractional suffix.
const driveLayout = "2006-01-02T15:04:05"

// Patch is one planned modifiedDate correction.
type Patch struct {
	FileID       string
	AlternateURL string
	ModifiedDate string
}

// ParseEXIFDate parses an EXIF capture timestamp. EXIF carries no zone;
// the value is taken as UTC, matching how Drive stamps it on upload.
func ParseEXIFDate(s string) (time.Time, error) {
	t, err := time.Parse(exifLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("datefix: parsing EXIF date %q: %w", s, err)
	}

	return t, nil
}

// FormatModifiedDate renders a timestamp the way the v2 API expects:
// RFC3339-shaped with an explicit ".0" fraction and Z suffix.
func FormatModifiedDate(t time.Time) string {
	return t.Format(driveLayout) + ".0Z"
}

// Plan computes the patches needed to align modifiedDate with the EXIF
// capture date. Files are skipped when they carry no EXIF date, when the
// date is unparseable, or when modifiedDate already matches.
func Plan(files []drive.File) []Patch {
	var patches []Patch

	for _, f := range files {
		if f.ImageMediaMetadata == nil || f.ImageMediaMetadata.Date == "" {
			continue
		}

		captured, err := ParseEXIFDate(f.ImageMediaMetadata.Date)
		if err != nil {
			continue
		}

		want := FormatModifiedDate(captured)
		if want == f.ModifiedDate {
			continue
		}

		patches = append(patches, Patch{
			FileID:       f.ID,
			AlternateURL: f.AlternateLink,
			ModifiedDate: want,
		})
	}

	return patches
}
