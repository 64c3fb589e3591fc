package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/driveup/internal/drive"
)

func file(id, sum, bytes string) drive.File {
	return drive.File{ID: id, Title: id + ".txt", MD5Checksum: sum, QuotaBytesUsed: bytes}
}

func TestFind_GroupsByChecksum(t *testing.T) {
	files := []drive.File{
		file("a", "sum1", "100"),
		file("b", "sum2", "200"),
		file("c", "sum1", "100"),
		file("d", "sum3", "50"),
		file("e", "sum1", "100"),
		file("f", "sum3", "50"),
	}

	sets := Find(files)
	require.Len(t, sets, 2)

	// Order follows first appearance in the listing.
	assert.Equal(t, "a", sets[0].Keep().ID)
	assert.Len(t, sets[0].Extras(), 2)
	assert.Equal(t, "d", sets[1].Keep().ID)
	assert.Len(t, sets[1].Extras(), 1)
}

func TestFind_SkipsFilesWithoutChecksum(t *testing.T) {
	files := []drive.File{
		{ID: "folder1"},
		{ID: "folder2"},
		file("a", "sum1", "10"),
	}

	assert.Empty(t, Find(files))
}

func TestFind_NoDuplicates(t *testing.T) {
	files := []drive.File{
		file("a", "sum1", "10"),
		file("b", "sum2", "20"),
	}

	assert.Empty(t, Find(files))
}

func TestWasted(t *testing.T) {
	sets := Find([]drive.File{
		file("a", "sum1", "100"),
		file("b", "sum1", "100"),
		file("c", "sum1", "100"),
		file("d", "sum2", "5000"),
		file("e", "sum2", "5000"),
	})
	require.Len(t, sets, 2)

	// Kept copies don't count against waste.
	assert.Equal(t, int64(200), sets[0].Wasted())
	assert.Equal(t, int64(5000), sets[1].Wasted())
	assert.Equal(t, int64(5200), TotalWasted(sets))
}
