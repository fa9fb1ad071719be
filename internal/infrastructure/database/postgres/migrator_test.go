package postgres

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

func TestEmbeddedMigrations_Paired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
	assert.Len(t, ups, 3)
}

func TestEmbeddedMigrations_Sequence(t *testing.T) {
	src, err := iofs.New(embeddedMigrations, "migrations")
	require.NoError(t, err)
	defer src.Close()

	v, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	var versions []uint
	for {
		versions = append(versions, v)
		body, _, err := src.ReadUp(v)
		require.NoError(t, err)
		sql, err := io.ReadAll(body)
		body.Close()
		require.NoError(t, err)
		assert.Contains(t, string(sql), "CREATE TABLE", "version %d", v)

		next, err := src.Next(v)
		if err != nil {
			assert.ErrorIs(t, err, os.ErrNotExist)
			break
		}
		v = next
	}
	assert.Equal(t, []uint{1, 2, 3}, versions)
}

func TestNewMigrator_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")
	_, err := NewMigrator("postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", dir, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}

func TestNewMigrator_UnreachableDatabase(t *testing.T) {
	_, err := NewMigrator("postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", "", logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}
