package helpers

import (
	"sort"
	"strings"

	"github.com/MustafaMerchant21/Nova/internal/domain"
)

// InputStatistic is how often one input went through the gate.
type InputStatistic struct {
	Input string
	Count int
}

// AuditStats summarises a slice of audit records.
type AuditStats struct {
	Total      int
	Allowed    int
	Denied     int
	Executed   int
	Successful int
	ByLevel    map[domain.ThreatLevel]int
	ByKind     map[domain.AuditKind]int
	inputs     map[string]int
}

// AnalyzeRecords counts decisions, outcomes and inputs.
func AnalyzeRecords(records []domain.AuditRecord) AuditStats {
	stats := AuditStats{
		Total:   len(records),
		ByLevel: make(map[domain.ThreatLevel]int),
		ByKind:  make(map[domain.AuditKind]int),
		inputs:  make(map[string]int),
	}
	for _, rec := range records {
		stats.ByLevel[rec.ThreatLevel]++
		stats.ByKind[rec.Kind]++
		if rec.Kind == domain.AuditValidate {
			continue
		}
		stats.inputs[firstLine(rec.Input)]++
		if rec.Allowed {
			stats.Allowed++
		} else {
			stats.Denied++
		}
		if rec.Executed {
			stats.Executed++
			if rec.Success {
				stats.Successful++
			}
		}
	}
	return stats
}

// TopInputs returns the most frequent executed or denied inputs. A limit of
// 0 or less returns all of them.
func (s AuditStats) TopInputs(limit int) []InputStatistic {
	out := make([]InputStatistic, 0, len(s.inputs))
	for input, count := range s.inputs {
		out = append(out, InputStatistic{Input: input, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Input < out[j].Input
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

// SuccessRate is the percentage of executed runs that succeeded.
func (s AuditStats) SuccessRate() float64 {
	return CalculateSuccessRate(s.Successful, s.Executed)
}

// CalculateSuccessRate calculates the success rate as a percentage
func CalculateSuccessRate(successfulCount int, executedCount int) float64 {
	if executedCount == 0 {
		return 0.0
	}
	return float64(successfulCount) / float64(executedCount) * 100.0
}

var undoHints = []struct {
	prefix string
	hint   string
}{
	{"docker ", "Use `docker ps -a` and `docker logs` to review container history before repeating."},
	{"git ", "Use `git status`, `git reflog`, or `git restore` to inspect and undo git changes."},
	{"kubectl ", "Use `kubectl rollout undo` or `kubectl get events` to recover from cluster issues."},
	{"rm ", "Restore files via backups or `git checkout -- <path>` if tracked."},
	{"terraform ", "Use `terraform plan` and the state backups before applying again."},
}

// DeriveUndoHints suggests recovery steps for tools that appear in executed
// records. Hints are unique and sorted.
func DeriveUndoHints(records []domain.AuditRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		if !rec.Executed {
			continue
		}
		for _, line := range strings.Split(strings.ToLower(rec.Input), "\n") {
			line = strings.TrimSpace(line)
			for _, h := range undoHints {
				if strings.HasPrefix(line, h.prefix) {
					seen[h.hint] = true
				}
			}
		}
	}
	hints := make([]string, 0, len(seen))
	for hint := range seen {
		hints = append(hints, hint)
	}
	sort.Strings(hints)
	return hints
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i] + " ..."
	}
	return text
}
