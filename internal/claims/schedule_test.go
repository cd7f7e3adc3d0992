package claims

import (
	"testing"
	"time"

	"github.com/stanstork/claimflow/internal/models"
)

func TestInterventionDate(t *testing.T) {
	tests := []struct {
		priority models.Priority
		want     time.Time
	}{
		{models.PriorityUrgent, fixedNow},
		{models.PriorityHigh, fixedNow.AddDate(0, 0, 1)},
		{models.PriorityMedium, fixedNow.AddDate(0, 0, 3)},
		{models.PriorityLow, fixedNow.AddDate(0, 0, 7)},
		{"critical", fixedNow.AddDate(0, 0, 3)},
		{"", fixedNow.AddDate(0, 0, 3)},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			got := InterventionDate(tt.priority, fixedNow)
			if !got.Equal(tt.want) {
				t.Errorf("InterventionDate(%q) = %s, want %s", tt.priority, got, tt.want)
			}
			if again := InterventionDate(tt.priority, fixedNow); !again.Equal(got) {
				t.Errorf("InterventionDate(%q) not stable: %s then %s", tt.priority, got, again)
			}
		})
	}
}
