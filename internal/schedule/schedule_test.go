package schedule

import (
	"testing"
	"time"
)

func TestDaily_Next_LaterToday(t *testing.T) {
	d := Daily{Hour: 9, Minute: 0, Location: time.UTC}
	now := time.Date(2026, 10, 19, 7, 30, 0, 0, time.UTC)
	want := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDaily_Next_AlreadyPassed(t *testing.T) {
	d := Daily{Hour: 9, Minute: 0, Location: time.UTC}
	now := time.Date(2026, 10, 19, 9, 0, 1, 0, time.UTC)
	want := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDaily_Next_ExactlyAtTargetMovesToTomorrow(t *testing.T) {
	d := Daily{Hour: 9, Minute: 0, Location: time.UTC}
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	want := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDaily_Next_MonthAndYearRollover(t *testing.T) {
	d := Daily{Hour: 6, Minute: 15, Location: time.UTC}
	now := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	want := time.Date(2027, 1, 1, 6, 15, 0, 0, time.UTC)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDaily_Next_UsesConfiguredZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	d := Daily{Hour: 9, Minute: 0, Location: tokyo}
	// 23:00 UTC on the 18th is 08:00 on the 19th in Tokyo.
	now := time.Date(2026, 10, 18, 23, 0, 0, 0, time.UTC)
	want := time.Date(2026, 10, 19, 9, 0, 0, 0, tokyo)
	if got := d.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDaily_Next_AlwaysFutureWithinADay(t *testing.T) {
	zones := []*time.Location{time.UTC, time.FixedZone("minus5", -5*3600), time.FixedZone("plus530", 5*3600+1800)}
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	for _, loc := range zones {
		for _, hm := range [][2]int{{0, 0}, {9, 0}, {12, 30}, {23, 59}} {
			d := Daily{Hour: hm[0], Minute: hm[1], Location: loc}
			for step := 0; step < 48*4; step++ {
				now := start.Add(time.Duration(step) * 15 * time.Minute).Add(7 * time.Second)
				next := d.Next(now)
				if !next.After(now) {
					t.Fatalf("%v: next %v not after now %v", d, next, now)
				}
				if next.Sub(now) > 24*time.Hour {
					t.Fatalf("%v: next %v more than 24h after %v", d, next, now)
				}
				local := next.In(loc)
				if local.Hour() != hm[0] || local.Minute() != hm[1] {
					t.Fatalf("%v: next %v has wrong wall clock", d, local)
				}
			}
		}
	}
}

func TestDaily_Next_KeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	d := Daily{Hour: 9, Minute: 0, Location: ny}
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, ny)
	next := d.Next(now)
	if next.Hour() != 9 || next.Day() != 8 {
		t.Fatalf("expected 09:00 on Mar 8, got %v", next)
	}
	if got := next.Sub(now); got != 22*time.Hour {
		t.Fatalf("expected 22h across spring-forward, got %v", got)
	}
}

func TestParse_Daily(t *testing.T) {
	s, err := Parse(9, 30, "UTC", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d, ok := s.(Daily)
	if !ok {
		t.Fatalf("expected Daily, got %T", s)
	}
	if d.Hour != 9 || d.Minute != 30 || d.Location != time.UTC {
		t.Fatalf("unexpected schedule: %+v", d)
	}
}

func TestParse_InvalidHourMinute(t *testing.T) {
	if _, err := Parse(24, 0, "UTC", ""); err == nil {
		t.Fatal("expected error for hour 24")
	}
	if _, err := Parse(9, 60, "UTC", ""); err == nil {
		t.Fatal("expected error for minute 60")
	}
}

func TestParse_UnknownTimezone(t *testing.T) {
	if _, err := Parse(9, 0, "Mars/Olympus", ""); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestParse_CronExpression(t *testing.T) {
	// Weekdays at 08:45.
	s, err := Parse(0, 0, "UTC", "45 8 * * 1-5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	// 2026-10-17 is a Saturday.
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 10, 19, 8, 45, 0, 0, time.UTC)
	if got := s.Next(now); !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParse_InvalidCron(t *testing.T) {
	if _, err := Parse(9, 0, "UTC", "not a cron"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
