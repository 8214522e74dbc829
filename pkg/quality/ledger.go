package quality

import (
	"sort"
	"sync"

	"github.com/panbanda/refaudit/pkg/models"
	"github.com/panbanda/refaudit/pkg/pathnorm"
)

// Ledger accumulates plugin findings keyed by normalized path. It is safe
// for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	norm     *pathnorm.Normalizer
	entries  map[string]map[string]any
	unparsed map[string][]string
}

// NewLedger creates an empty ledger normalizing paths with norm.
func NewLedger(norm *pathnorm.Normalizer) *Ledger {
	return &Ledger{
		norm:     norm,
		entries:  make(map[string]map[string]any),
		unparsed: make(map[string][]string),
	}
}

// Key returns the ledger key for path.
func (l *Ledger) Key(path string) string {
	return l.norm.Normalize(path)
}

// Normalizer returns the ledger's path normalizer.
func (l *Ledger) Normalizer() *pathnorm.Normalizer {
	return l.norm
}

func (l *Ledger) plugins(key string) map[string]any {
	m, ok := l.entries[key]
	if !ok {
		m = make(map[string]any)
		l.entries[key] = m
	}
	return m
}

// AddIssue appends an issue to the plugin's issue list for path.
func (l *Ledger) AddIssue(plugin, path string, issue Issue) {
	key := l.Key(path)
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.plugins(key)
	list, _ := m[plugin].(*IssueList)
	if list == nil {
		list = &IssueList{}
		m[plugin] = list
	}
	list.Issues = append(list.Issues, issue)
}

// Set replaces the plugin's payload for path.
func (l *Ledger) Set(plugin, path string, payload any) {
	key := l.Key(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plugins(key)[plugin] = payload
}

// AddUnparsed keeps a report line that did not match the plugin's format.
func (l *Ledger) AddUnparsed(plugin, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unparsed[plugin] = append(l.unparsed[plugin], line)
}

// Clear drops everything the plugin has recorded, so re-parsing a report
// replaces rather than duplicates its findings.
func (l *Ledger) Clear(plugin string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, m := range l.entries {
		delete(m, plugin)
		if len(m) == 0 {
			delete(l.entries, key)
		}
	}
	delete(l.unparsed, plugin)
}

// Paths returns the keys with findings in sorted order.
func (l *Ledger) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	paths := make([]string, 0, len(l.entries))
	for p := range l.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Unparsed returns a copy of the unparsed lines per plugin.
func (l *Ledger) Unparsed() map[string][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]string, len(l.unparsed))
	for plugin, lines := range l.unparsed {
		out[plugin] = append([]string(nil), lines...)
	}
	return out
}

// Findings returns a copy of all findings by path. Unparsed lines appear
// under models.UnparsedKey as {"unparsed": [...]} per plugin.
func (l *Ledger) Findings() map[string]models.QualityFinding {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]models.QualityFinding, len(l.entries)+1)
	for key, m := range l.entries {
		f := make(models.QualityFinding, len(m))
		for plugin, payload := range m {
			if list, ok := payload.(*IssueList); ok {
				payload = IssueList{Issues: append([]Issue(nil), list.Issues...)}
			}
			f[plugin] = payload
		}
		out[key] = f
	}
	if len(l.unparsed) > 0 {
		f := make(models.QualityFinding, len(l.unparsed))
		for plugin, lines := range l.unparsed {
			f[plugin] = map[string]any{"unparsed": append([]string(nil), lines...)}
		}
		out[models.UnparsedKey] = f
	}
	return out
}

// Ledger converts the findings into audit records carrying only the
// quality sub-ledger.
func (l *Ledger) Ledger() models.AuditLedger {
	out := make(models.AuditLedger)
	for key, f := range l.Findings() {
		rec := models.NewFileAuditRecord()
		rec.Quality = f
		out[key] = rec
	}
	return out
}
