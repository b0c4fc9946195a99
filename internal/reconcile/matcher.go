package reconcile

import (
	"time"

	"github.com/donorsync/donorsync/internal/crm/domain"
)

// MatchToleranceDays is how far, in whole days, an installment may land from
// an opportunity's close date and still be treated as the same payment.
const MatchToleranceDays = 10

// Match is the result of searching a recurring donation's opportunities for
// the one closest to a transaction date. Opportunity is nil when there was
// nothing to search. WithinTolerance reports whether the closest candidate is
// near enough to reuse; callers create a fresh installment when it is not.
type Match struct {
	Opportunity     *domain.Opportunity
	DaysDelta       int
	WithinTolerance bool
}

// ClosestOpportunity finds the opportunity whose close date is nearest to
// date. Distance ties break on the earlier close date, then the lower ID, so
// reruns of the same import pick the same record.
func ClosestOpportunity(opps []*domain.Opportunity, date time.Time) Match {
	var best *domain.Opportunity
	bestDelta := 0
	for _, opp := range opps {
		delta := daysBetween(opp.CloseDate, date)
		if best == nil || delta < bestDelta {
			best, bestDelta = opp, delta
			continue
		}
		if delta == bestDelta {
			if opp.CloseDate.Before(best.CloseDate) ||
				(opp.CloseDate.Equal(best.CloseDate) && opp.ID < best.ID) {
				best = opp
			}
		}
	}
	if best == nil {
		return Match{}
	}
	return Match{
		Opportunity:     best,
		DaysDelta:       bestDelta,
		WithinTolerance: bestDelta <= MatchToleranceDays,
	}
}

// daysBetween is the absolute whole-day distance between two dates, measured
// at UTC midnight so time-of-day noise cannot skew it.
func daysBetween(a, b time.Time) int {
	days := int(midnight(a).Sub(midnight(b)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
