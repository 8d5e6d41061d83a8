package rule

import "deal_staleness_monitor/internal/domain/deal"

// Classify maps days of inactivity to a status. Thresholds are inclusive lower
// bounds checked from the most severe band down, so a malformed rule still
// yields a deterministic answer.
func (t Thresholds) Classify(daysInactive int) deal.Status {
	switch {
	case daysInactive >= t.CriticalDays:
		return deal.StatusCritical
	case daysInactive >= t.StaleDays:
		return deal.StatusStale
	case daysInactive >= t.WarningDays:
		return deal.StatusWarning
	default:
		return deal.StatusHealthy
	}
}
