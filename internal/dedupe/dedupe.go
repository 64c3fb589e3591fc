// Package dedupe groups remote files by content checksum and accounts for
// the quota space reclaimable by trashing redundant copies.
package dedupe

import (
	"github.com/tonimelisma/driveup/internal/drive"
)

// Fields is the files.list projection needed for duplicate detection.
const Fields = "nextPageToken,items(id,md5Checksum,title,alternateLink,quotaBytesUsed)"

// Query selects every non-trashed file.
const Query = "trashed=false"

// Set is a group of files sharing one checksum. The first file listed is
// kept; the rest are redundant copies.
type Set struct {
	Files []drive.File
}

// Keep returns the file that survives deduplication.
func (s Set) Keep() drive.File {
	return s.Files[0]
}

// Extras returns the redundant copies, candidates for trashing.
func (s Set) Extras() []drive.File {
	return s.Files[1:]
}

// Wasted returns the quota bytes consumed by the redundant copies.
func (s Set) Wasted() int64 {
	var total int64
	for _, f := range s.Extras() {
		total += f.QuotaBytes()
	}

	return total
}

// Find groups files by md5Checksum and returns the groups with more than
// one member, ordered by first appearance in the input. Files without a
// checksum (folders, Google-native documents) are ignored — they have no
// byte content to compare.
func Find(files []drive.File) []Set {
	byChecksum := make(map[string][]drive.File)

	var order []string

	for _, f := range files {
		if f.MD5Checksum == "" {
			continue
		}

		if _, seen := byChecksum[f.MD5Checksum]; !seen {
			order = append(order, f.MD5Checksum)
		}

		byChecksum[f.MD5Checksum] = append(byChecksum[f.MD5Checksum], f)
	}

	var sets []Set

	for _, sum := range order {
		if group := byChecksum[sum]; len(group) > 1 {
			sets = append(sets, Set{Files: group})
		}
	}

	return sets
}

// TotalWasted sums the reclaimable bytes across all duplicate sets.
func TotalWasted(sets []Set) int64 {
	var total int64
	for _, s := range sets {
		total += s.Wasted()
	}

	return total
}
