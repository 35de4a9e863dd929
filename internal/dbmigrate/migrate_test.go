package dbmigrate

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceURL(t *testing.T) {
	u, err := SourceURL("db/schema")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file:///"))
	assert.True(t, strings.HasSuffix(u, "/db/schema"))
}

func TestUp_MissingSourceDir(t *testing.T) {
	err := Up(filepath.Join(t.TempDir(), "nope"), "postgres://localhost:1/none?sslmode=disable")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create migrator")
}

func TestDown_RejectsNonPositiveSteps(t *testing.T) {
	err := Down("db/schema", "postgres://localhost/none", 0)
	assert.EqualError(t, err, "steps must be positive, got 0")
}
