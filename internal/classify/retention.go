package classify

import (
	"time"

	"github.com/KaramelBytes/trialfunnel-cli/internal/model"
)

// DefaultMinPostTrialVisits is the number of return visits that makes a client retained.
const DefaultMinPostTrialVisits = 1

// RetentionClassifier counts bookings after a client's first visit.
// Like ConversionClassifier it is read-only after construction.
type RetentionClassifier struct {
	bookings  []model.BookingRecord
	idx       keyIndex
	minVisits int
}

// NewRetentionClassifier indexes bookings by email and member ID. A
// non-positive minVisits falls back to DefaultMinPostTrialVisits.
func NewRetentionClassifier(bookings []model.BookingRecord, minVisits int) *RetentionClassifier {
	if minVisits <= 0 {
		minVisits = DefaultMinPostTrialVisits
	}
	return &RetentionClassifier{
		bookings:  bookings,
		minVisits: minVisits,
		idx: buildIndex(len(bookings), func(i int) (string, string) {
			return bookings[i].Email, bookings[i].MemberID
		}),
	}
}

// Classify counts bookings dated strictly after the first visit. When the
// first visit carries no time of day, only bookings on a later calendar day
// count, so the trial class itself is never a return visit. A client with an
// unusable first visit date has zero post-trial visits.
func (rc *RetentionClassifier) Classify(c model.ClientProfile) model.RetentionResult {
	res := model.RetentionResult{Status: model.NotRetained}
	visit, verr := firstVisit(c)
	if verr != "" {
		return res
	}
	for _, i := range rc.idx.match(c.Email, c.MemberID) {
		b := rc.bookings[i]
		if !b.Date.IsZero() && afterVisit(b.Date, visit) {
			res.VisitsPostTrial++
		}
	}
	if res.VisitsPostTrial >= rc.minVisits {
		res.Status = model.Retained
	}
	return res
}

func afterVisit(t, visit time.Time) bool {
	if visit.Equal(visit.Truncate(24 * time.Hour)) {
		return !t.Before(visit.AddDate(0, 0, 1))
	}
	return t.After(visit)
}
