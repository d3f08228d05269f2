package backup

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStoreAppendAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backups.jsonl")

	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	first := Record{
		Type:        RecordTypeDirectoryTar,
		HostID:      "tgt1",
		SourcePath:  "/srv/appdata/blog",
		ArtifactRef: "/tmp/backup_blog_20260801T120000Z.tar.gz",
		SizeBytes:   1024,
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Reason:      "pre-migration target backup",
		StackName:   "blog",
	}
	second := Record{
		Type:        RecordTypeZFSSnapshot,
		HostID:      "tgt2",
		SourcePath:  "pool/appdata",
		ArtifactRef: "pool/appdata@backup_blog_20260801T120500Z",
		StackName:   "blog",
	}
	require.NoError(t, store.Append(first))
	require.NoError(t, store.Append(second))

	records, err := Load(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, first, records[0])
	require.Equal(t, RecordTypeZFSSnapshot, records[1].Type)
	require.Equal(t, "pool/appdata@backup_blog_20260801T120500Z", records[1].ArtifactRef)
}

func TestLoadMissingStoreIsEmptyNotError(t *testing.T) {
	records, err := Load(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	require.Empty(t, records)
}
