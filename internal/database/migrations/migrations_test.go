package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(embedded, "sql/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, f := range files {
		name := strings.TrimPrefix(f, "sql/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", f)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCarriesScanConstraints(t *testing.T) {
	up, err := fs.ReadFile(embedded, "sql/000001_create_scan_tables.up.sql")
	require.NoError(t, err)
	schema := string(up)

	assert.Contains(t, schema, "UNIQUE (token)")
	assert.Contains(t, schema, "UNIQUE (client_event_id)")
	assert.Contains(t, schema, "UNIQUE (qr_slot_id, day)")
	assert.Contains(t, schema, "ON scan_events (qr_slot_id)")
}

func TestInitializeRejectsMissingDir(t *testing.T) {
	r := NewRunner("postgres://localhost/none?sslmode=disable", MigrateOptions{Dir: "/does/not/exist"}, nil)
	assert.Error(t, r.Initialize())
}
