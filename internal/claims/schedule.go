package claims

import (
	"time"

	"github.com/stanstork/claimflow/internal/models"
)

// InterventionDate is the target date for a claim of the given priority.
// Unknown priorities are scheduled like medium ones.
func InterventionDate(p models.Priority, now time.Time) time.Time {
	switch p {
	case models.PriorityUrgent:
		return now
	case models.PriorityHigh:
		return now.AddDate(0, 0, 1)
	case models.PriorityLow:
		return now.AddDate(0, 0, 7)
	default:
		return now.AddDate(0, 0, 3)
	}
}
