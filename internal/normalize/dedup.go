package normalize

import (
	"strconv"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

// DedupStats reports how many rows were folded into earlier ones.
type DedupStats struct {
	Input      int `json:"input"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
}

// dedupKey is the normalized email, falling back to member ID. Rows with
// neither are never merged.
func dedupKey(c model.ClientProfile, i int) string {
	if c.Email != "" {
		return "email:" + c.Email
	}
	if c.MemberID != "" {
		return "id:" + c.MemberID
	}
	return "row:" + strconv.Itoa(i)
}

// Dedup keeps the first-seen profile per client; output follows input order.
func Dedup(clients []model.ClientProfile) ([]model.ClientProfile, DedupStats) {
	seen := make(map[string]struct{}, len(clients))
	out := make([]model.ClientProfile, 0, len(clients))
	for i, c := range clients {
		k := dedupKey(c, i)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out, DedupStats{Input: len(clients), Unique: len(out), Duplicates: len(clients) - len(out)}
}
