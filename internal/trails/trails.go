// Package trails implements the append-only trail ledger and the decayed
// hotspot aggregator. Tasks lay trails over the resources they touch;
// aggregation folds those touches into a hierarchical activity map where
// strength decays exponentially, so recent activity dominates regardless of
// how much history has accumulated.
package trails

import (
	"context"
	"fmt"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/hindsight/internal/config"
	"github.com/steveyegge/hindsight/internal/events"
	"github.com/steveyegge/hindsight/internal/storage"
	"github.com/steveyegge/hindsight/internal/types"
)

// Ledger lays trails and aggregates them into hotspots.
type Ledger struct {
	store storage.Storage
	cfg   config.Trails
	actor string

	// now is swappable for deterministic decay tests
	now func() time.Time
}

// NewLedger creates a trail ledger.
func NewLedger(store storage.Storage, cfg config.Trails, actor string) *Ledger {
	if actor == "" {
		actor = "trails"
	}
	return &Ledger{store: store, cfg: cfg, actor: actor, now: time.Now}
}

// Lay records one trail event per distinct normalized path for the task.
// Re-laying the identical trail is a no-op: (task_id, path) pairs already
// present are skipped, and the returned count covers only new events.
func (l *Ledger) Lay(ctx context.Context, taskID, domain string, paths []string) (int, error) {
	if strings.TrimSpace(taskID) == "" {
		return 0, fmt.Errorf("task id is required")
	}

	normalized := NormalizePaths(paths)
	if len(normalized) == 0 {
		return 0, nil
	}

	inserted, err := l.store.LayTrail(ctx, taskID, domain, normalized, l.cfg.BaseStrength)
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		l.emit(ctx, events.New(events.EventTypeTrailLaid, events.SeverityInfo, l.actor,
			fmt.Sprintf("Task %s laid trail over %d paths", taskID, inserted),
			map[string]interface{}{
				"task_id": taskID,
				"domain":  domain,
				"paths":   inserted,
			}))
	}
	return inserted, nil
}

// NormalizePaths canonicalizes and dedupes a path list: slashes are
// normalized, "." segments and leading "./" are cleaned away, empties are
// dropped, and first occurrence wins so output order is stable.
func NormalizePaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		cleaned := path.Clean(filepath.ToSlash(strings.TrimSpace(p)))
		if cleaned == "" || cleaned == "." || cleaned == "/" {
			continue
		}
		cleaned = strings.TrimPrefix(cleaned, "/")
		if seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

// Hotspots aggregates the ledger under scope into a hierarchical activity
// tree. Each leaf is a touched path with its decayed strength; each
// directory node carries the sum over its descendants. Children are sorted
// by strength, hottest first. An empty scope aggregates everything; the
// returned root is nil when no events fall under the scope.
func (l *Ledger) Hotspots(ctx context.Context, scope string) (*types.Hotspot, error) {
	trailEvents, err := l.store.GetTrailEvents(ctx, normalizeScope(scope))
	if err != nil {
		return nil, err
	}
	if len(trailEvents) == 0 {
		return nil, nil
	}

	now := l.now()
	type leaf struct {
		hits     int
		strength float64
	}
	leaves := make(map[string]*leaf)
	for _, ev := range trailEvents {
		lf := leaves[ev.Path]
		if lf == nil {
			lf = &leaf{}
			leaves[ev.Path] = lf
		}
		lf.hits++
		lf.strength += l.decayed(ev.Strength, now.Sub(ev.LaidAt))
	}

	root := &types.Hotspot{Path: normalizeScope(scope)}
	nodes := map[string]*types.Hotspot{root.Path: root}
	for p, lf := range leaves {
		node := l.ensureNode(nodes, root, p)
		node.Hits += lf.hits
		node.Strength += lf.strength
		// Roll the leaf's contribution up through every ancestor
		for cur := node; cur != root; {
			parent := nodes[parentOf(cur.Path, root.Path)]
			parent.Hits += lf.hits
			parent.Strength += lf.strength
			cur = parent
		}
	}

	l.finalize(root)
	return root, nil
}

// decayed applies exponential decay: a touch one half-life old counts half.
func (l *Ledger) decayed(strength float64, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return strength * math.Pow(0.5, age.Hours()/l.cfg.HalfLife.Hours())
}

// Severity buckets a decayed strength using the configured thresholds.
func (l *Ledger) Severity(strength float64) types.Severity {
	switch {
	case strength >= l.cfg.CriticalThreshold:
		return types.SeverityCritical
	case strength >= l.cfg.HighThreshold:
		return types.SeverityHigh
	case strength >= l.cfg.MediumThreshold:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// ensureNode materializes the node for p and all intermediate directories
// between the root and p, wiring parent-child links as it goes.
func (l *Ledger) ensureNode(nodes map[string]*types.Hotspot, root *types.Hotspot, p string) *types.Hotspot {
	if node, ok := nodes[p]; ok {
		return node
	}
	node := &types.Hotspot{Path: p}
	nodes[p] = node
	parent := l.ensureNode(nodes, root, parentOf(p, root.Path))
	parent.Children = append(parent.Children, node)
	return node
}

// parentOf returns the parent path of p, clamped at the aggregation root.
func parentOf(p, rootPath string) string {
	if p == rootPath {
		return rootPath
	}
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return rootPath
	}
	parent := p[:idx]
	// Never climb past the aggregation root
	if rootPath != "" && !strings.HasPrefix(parent+"/", rootPath+"/") && parent != rootPath {
		return rootPath
	}
	return parent
}

// finalize assigns severities and sorts children hottest-first.
func (l *Ledger) finalize(node *types.Hotspot) {
	node.Severity = l.Severity(node.Strength)
	sort.Slice(node.Children, func(i, j int) bool {
		return node.Children[i].Strength > node.Children[j].Strength
	})
	for _, child := range node.Children {
		l.finalize(child)
	}
}

func normalizeScope(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return ""
	}
	cleaned := path.Clean(filepath.ToSlash(scope))
	if cleaned == "." || cleaned == "/" {
		return ""
	}
	return strings.Trim(cleaned, "/")
}

func (l *Ledger) emit(ctx context.Context, ev *events.Event) {
	if err := l.store.StoreEvent(ctx, ev); err != nil {
		fmt.Printf("Warning: failed to store %s event: %v\n", ev.Type, err)
	}
}
