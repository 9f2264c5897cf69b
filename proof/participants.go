package proof

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var accountIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// IsAccountID reports whether s is a well-formed triple-dotted ledger
// account id such as 0.0.12345.
func IsAccountID(s string) bool {
	return accountIDPattern.MatchString(s)
}

// CompareAccountIDs orders account ids by dotted integer components.
// Missing components compare as 0; ids with equal components tie-break on
// the raw string. Returns -1, 0 or 1.
func CompareAccountIDs(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av := accountComponent(as, i)
		bv := accountComponent(bs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return strings.Compare(a, b)
}

func accountComponent(parts []string, i int) int64 {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.ParseInt(parts[i], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SortAccountIDs trims, deduplicates and sorts account ids into the
// canonical participant order. The input slice is left untouched.
func SortAccountIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return CompareAccountIDs(out[i], out[j]) < 0
	})
	return out
}

// ResolveParticipants computes the participant set for a consensus entry.
// Bootstrap-provided account ids take precedence; otherwise the well-formed
// ids the matching proofs name themselves; otherwise each proof's own petal
// account id. The result is deduplicated and canonically sorted.
func ResolveParticipants(bootstrap []string, matching []*ProofPayload) []string {
	if len(bootstrap) > 0 {
		return SortAccountIDs(bootstrap)
	}
	var ids []string
	for _, p := range matching {
		for _, id := range p.Participants {
			if IsAccountID(strings.TrimSpace(id)) {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		for _, p := range matching {
			ids = append(ids, p.PetalAccountID)
		}
	}
	return SortAccountIDs(ids)
}

// Leader elects the publishing participant for an epoch by rotating through
// the sorted participant list.
func Leader(sortedParticipants []string, epoch uint64) string {
	if len(sortedParticipants) == 0 {
		return ""
	}
	return sortedParticipants[epoch%uint64(len(sortedParticipants))]
}
