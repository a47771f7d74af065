package billing

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextPaymentDate(t *testing.T) {
	cases := []struct {
		name    string
		current time.Time
		anchor  int
		want    time.Time
	}{
		{"mid month keeps day", date(2024, time.January, 15), 15, date(2024, time.February, 15)},
		{"leap february", date(2024, time.January, 31), 31, date(2024, time.February, 29)},
		{"non leap february", date(2023, time.January, 31), 31, date(2023, time.February, 28)},
		{"end of month anchor recovers", date(2024, time.February, 29), 31, date(2024, time.March, 31)},
		{"anchor 28 snaps to last day", date(2024, time.March, 31), 28, date(2024, time.April, 30)},
		{"december rollover", date(2023, time.December, 10), 10, date(2024, time.January, 10)},
		{"zero anchor uses current day", date(2024, time.May, 3), 0, date(2024, time.June, 3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NextPaymentDate(tc.current, tc.anchor); !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format(time.DateOnly), got.Format(time.DateOnly))
			}
		})
	}
}

func TestNextPaymentDateNeverDrifts(t *testing.T) {
	current := date(2024, time.January, 31)
	for i := 0; i < 24; i++ {
		next := NextPaymentDate(current, 31)
		if next.AddDate(0, 0, 1).Day() != 1 {
			t.Fatalf("expected last day of month, got %s", next.Format(time.DateOnly))
		}
		if !next.After(current) {
			t.Fatalf("due date must move forward: %s -> %s", current, next)
		}
		current = next
	}
}

func TestFirstPaymentDate(t *testing.T) {
	if got := FirstPaymentDate(date(2024, time.March, 10), 15); !got.Equal(date(2024, time.March, 15)) {
		t.Fatalf("expected same month, got %s", got.Format(time.DateOnly))
	}
	if got := FirstPaymentDate(date(2024, time.March, 20), 15); !got.Equal(date(2024, time.April, 15)) {
		t.Fatalf("expected next month, got %s", got.Format(time.DateOnly))
	}
	if got := FirstPaymentDate(date(2024, time.February, 10), 31); !got.Equal(date(2024, time.February, 29)) {
		t.Fatalf("expected end of february, got %s", got.Format(time.DateOnly))
	}
	if got := FirstPaymentDate(date(2024, time.June, 7), 0); !got.Equal(date(2024, time.June, 7)) {
		t.Fatalf("expected start date, got %s", got.Format(time.DateOnly))
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	instant := time.Date(2024, time.January, 14, 16, 30, 0, 0, time.UTC)
	if got := DateOf(instant, seoul); !got.Equal(date(2024, time.January, 15)) {
		t.Fatalf("expected local date 2024-01-15, got %s", got.Format(time.DateOnly))
	}
	if got := DateOf(instant, nil); !got.Equal(date(2024, time.January, 14)) {
		t.Fatalf("expected utc date, got %s", got.Format(time.DateOnly))
	}
}
