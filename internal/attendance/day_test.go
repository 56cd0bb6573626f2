package attendance

import (
	"testing"
	"time"
)

func TestDayBucket(t *testing.T) {
	jakarta, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	tests := []struct {
		name string
		ts   time.Time
		loc  *time.Location
		want time.Time
	}{
		{
			name: "midday",
			ts:   time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last second of day",
			ts:   time.Date(2026, 3, 2, 23, 59, 59, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first second of next day",
			ts:   time.Date(2026, 3, 3, 0, 0, 1, 0, time.UTC),
			loc:  time.UTC,
			want: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "utc evening is next day in jakarta",
			ts:   time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), // 01:00 Mar 3 UTC+7
			loc:  jakarta,
			want: time.Date(2026, 3, 3, 0, 0, 0, 0, jakarta),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DayBucket(tt.ts, tt.loc)
			if !got.Equal(tt.want) {
				t.Errorf("DayBucket(%v, %v) = %v, want %v", tt.ts, tt.loc, got, tt.want)
			}
		})
	}
}
