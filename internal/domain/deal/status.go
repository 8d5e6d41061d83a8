// internal/domain/deal/status.go
package deal

import "fmt"

// Status is the staleness classification of a deal.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusStale    Status = "stale"
	StatusCritical Status = "critical"
)

// AllStatuses lists the statuses from least to most severe.
var AllStatuses = []Status{StatusHealthy, StatusWarning, StatusStale, StatusCritical}

// ParseStatus converts a stored value into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusHealthy, StatusWarning, StatusStale, StatusCritical:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown staleness status %q", s)
	}
}

// StoredStatus maps a persisted value to a Status without rejecting it. A
// deal that was never classified has no stored value and reads as healthy.
// Unknown values pass through and fail Valid.
func StoredStatus(s string) Status {
	if s == "" {
		return StatusHealthy
	}
	return Status(s)
}

// Valid reports whether s is one of the four staleness statuses.
func (s Status) Valid() bool {
	return s.Severity() >= 0
}

// Severity orders statuses: healthy=0 ... critical=3.
func (s Status) Severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusStale:
		return 2
	case StatusCritical:
		return 3
	default:
		return -1
	}
}

// IsEscalated reports whether managers must be told about this status.
func (s Status) IsEscalated() bool {
	switch s {
	case StatusStale, StatusCritical:
		return true
	case StatusHealthy, StatusWarning:
		return false
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
