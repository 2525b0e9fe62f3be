package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformBackupSnapshotsData(t *testing.T) {
	db := newTestDB(t)
	v := newTestVenue(t, db)

	storage := t.TempDir()
	logger := zerolog.New(io.Discard)
	svc := NewBackupService(db, BackupConfig{Enabled: true, StoragePath: storage}, &logger)

	require.NoError(t, svc.PerformBackup(context.Background()))

	files, err := os.ReadDir(storage)
	require.NoError(t, err)
	require.Len(t, files, 1)

	// The snapshot is a working database with the venue in it.
	snapshot, err := NewDB(filepath.Join(storage, files[0].Name()))
	require.NoError(t, err)
	defer snapshot.Close()

	got, err := snapshot.GetVenue(context.Background(), v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Name, got.Name)
}

func TestCleanupOldBackups(t *testing.T) {
	storage := t.TempDir()
	logger := zerolog.New(io.Discard)

	old := filepath.Join(storage, "courtbook_20200101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	fresh := filepath.Join(storage, "courtbook_fresh.db")
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0o644))

	unrelated := filepath.Join(storage, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))
	require.NoError(t, os.Chtimes(unrelated, past, past))

	svc := NewBackupService(nil, BackupConfig{StoragePath: storage, RetentionDays: 14}, &logger)
	svc.CleanupOldBackups()

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, unrelated, "only snapshot files are subject to retention")
}
