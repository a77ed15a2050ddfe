package trails

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/storage/sqlite"
	"github.com/steveyegge/hindsight/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), sqlite.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewLedger(store, config.Default().Trails, "test"), store
}

func TestNormalizePaths(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		want  []string
	}{
		{
			name:  "strips dot prefixes and cleans",
			paths: []string{"./src/main.go", "src/../src/util.go"},
			want:  []string{"src/main.go", "src/util.go"},
		},
		{
			name:  "backslashes normalized",
			paths: []string{`src\win\io.go`},
			want:  []string{"src/win/io.go"},
		},
		{
			name:  "dedupes keeping first occurrence",
			paths: []string{"a.go", "b.go", "./a.go"},
			want:  []string{"a.go", "b.go"},
		},
		{
			name:  "drops empties and bare dots",
			paths: []string{"", "  ", ".", "a.go"},
			want:  []string{"a.go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePaths(tt.paths))
		})
	}
}

func TestLayRequiresTaskID(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Lay(context.Background(), "  ", "coding", []string{"a.go"})
	assert.ErrorContains(t, err, "task id is required")
}

func TestLayIsIdempotent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	n, err := ledger.Lay(ctx, "t1", "coding", []string{"src/a.go", "src/b.go"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Same trail again, including aliased spellings of the same paths
	n, err = ledger.Lay(ctx, "t1", "coding", []string{"./src/a.go", "src/b.go", "src/a.go"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	root, err := ledger.Hotspots(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, 2, root.Hits)
}

func TestHotspotsEmptyLedger(t *testing.T) {
	ledger, _ := newTestLedger(t)

	root, err := ledger.Hotspots(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, root)
}

func findChild(node *types.Hotspot, path string) *types.Hotspot {
	for _, c := range node.Children {
		if c.Path == path {
			return c
		}
	}
	return nil
}

func TestHotspotsRollup(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Lay(ctx, "t1", "coding", []string{"src/parser/lex.go", "src/parser/ast.go", "docs/guide.md"})
	require.NoError(t, err)
	_, err = ledger.Lay(ctx, "t2", "coding", []string{"src/parser/lex.go"})
	require.NoError(t, err)

	root, err := ledger.Hotspots(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, root)

	// 4 touches total, all recent so decay is negligible
	assert.Equal(t, 4, root.Hits)
	assert.InDelta(t, 4.0, root.Strength, 0.01)

	src := findChild(root, "src")
	require.NotNil(t, src)
	assert.Equal(t, 3, src.Hits)

	parser := findChild(src, "src/parser")
	require.NotNil(t, parser)
	assert.Equal(t, 3, parser.Hits)
	assert.InDelta(t, 3.0, parser.Strength, 0.01)

	lex := findChild(parser, "src/parser/lex.go")
	require.NotNil(t, lex)
	assert.Equal(t, 2, lex.Hits)

	// Children sorted hottest first
	require.Len(t, parser.Children, 2)
	assert.Equal(t, "src/parser/lex.go", parser.Children[0].Path)
	assert.Equal(t, "src/parser/ast.go", parser.Children[1].Path)

	// Directory strength equals the sum over its children
	var sum float64
	for _, c := range parser.Children {
		sum += c.Strength
	}
	assert.InDelta(t, parser.Strength, sum, 1e-9)
}

func TestHotspotsScoped(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Lay(ctx, "t1", "coding", []string{"src/parser/lex.go", "src/runtime/gc.go", "docs/guide.md"})
	require.NoError(t, err)

	root, err := ledger.Hotspots(ctx, "src/parser")
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "src/parser", root.Path)
	assert.Equal(t, 1, root.Hits)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "src/parser/lex.go", root.Children[0].Path)
}

// A handful of old touches must fade below a single fresh one.
func TestDecayOldActivityFades(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, task := range []string{"t1", "t2", "t3"} {
		_, err := ledger.Lay(ctx, task, "coding", []string{"old/cold.go"})
		require.NoError(t, err)
	}

	// Viewed from four half-lives in the future the three touches count 3/16,
	// less than one fresh touch would
	ledger.now = func() time.Time { return time.Now().Add(4 * ledger.cfg.HalfLife) }

	root, err := ledger.Hotspots(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, root)

	old := findChild(root, "old")
	require.NotNil(t, old)
	assert.InDelta(t, 3.0/16.0, old.Strength, 0.01)
	assert.Equal(t, 3, old.Hits)
	assert.Less(t, old.Strength, ledger.cfg.BaseStrength)
}

func TestDecayHalfLife(t *testing.T) {
	ledger, _ := newTestLedger(t)

	assert.InDelta(t, 1.0, ledger.decayed(1.0, 0), 1e-9)
	assert.InDelta(t, 0.5, ledger.decayed(1.0, ledger.cfg.HalfLife), 1e-9)
	assert.InDelta(t, 0.25, ledger.decayed(1.0, 2*ledger.cfg.HalfLife), 1e-9)
	// Clock skew never inflates strength
	assert.InDelta(t, 1.0, ledger.decayed(1.0, -time.Hour), 1e-9)
}

func TestSeverityBuckets(t *testing.T) {
	ledger, _ := newTestLedger(t)

	tests := []struct {
		strength float64
		want     types.Severity
	}{
		{9.0, types.SeverityCritical},
		{8.0, types.SeverityCritical},
		{7.9, types.SeverityHigh},
		{4.0, types.SeverityHigh},
		{3.9, types.SeverityMedium},
		{1.5, types.SeverityMedium},
		{1.4, types.SeverityLow},
		{0.0, types.SeverityLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ledger.Severity(tt.strength), "strength %.1f", tt.strength)
	}
}
