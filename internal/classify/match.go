// Package classify decides, per client, whether a trial converted into a
// qualifying purchase and whether the client came back afterwards.
package classify

import (
	"time"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
	"github.com/KaramelBytes/trialfunnel-cli/internal/normalize"
)

// keyIndex is an OR-join over two weak identifiers. Each map holds record
// positions in ascending order; a lookup merges both lists.
type keyIndex struct {
	byEmail  map[string][]int
	byMember map[string][]int
}

func buildIndex(n int, keys func(i int) (email, member string)) keyIndex {
	x := keyIndex{byEmail: map[string][]int{}, byMember: map[string][]int{}}
	for i := 0; i < n; i++ {
		email, member := keys(i)
		if email != "" {
			x.byEmail[email] = append(x.byEmail[email], i)
		}
		if member != "" {
			x.byMember[member] = append(x.byMember[member], i)
		}
	}
	return x
}

// match returns every record position whose email or member ID equals the
// client's, ascending and without repeats. Blank keys never match.
func (x keyIndex) match(email, member string) []int {
	var a, b []int
	if email != "" {
		a = x.byEmail[email]
	}
	if member != "" {
		b = x.byMember[member]
	}
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var v int
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			v = a[i]
			i++
		case i >= len(a) || b[j] < a[i]:
			v = b[j]
			j++
		default:
			v = a[i]
			i++
			j++
		}
		out = append(out, v)
	}
	return out
}

// firstVisit parses the client's first visit and returns the matching
// validation code when it is unusable.
func firstVisit(c model.ClientProfile) (time.Time, string) {
	if c.FirstVisitDate == "" {
		return time.Time{}, model.ErrMissingFirstVisitDate
	}
	t, ok := normalize.ParseDate(c.FirstVisitDate)
	if !ok {
		return time.Time{}, model.ErrInvalidFirstVisitDate
	}
	return t, ""
}
