package worker

import (
	"testing"
	"time"
)

func TestNextRunAfter(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "hour already passed rolls to tomorrow",
			now:  time.Date(2026, 3, 10, 7, 0, 1, 0, time.UTC),
			hour: 6,
			want: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly on the hour rolls to tomorrow",
			now:  time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2026, 3, 11, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "midnight cron",
			now:  time.Date(2026, 12, 31, 23, 59, 0, 0, time.UTC),
			hour: 0,
			want: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRunAfter(tt.now, tt.hour)
			if !got.Equal(tt.want) {
				t.Errorf("nextRunAfter(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
			}
		})
	}
}
