// internal/certlogic/datetime_test.go
package certlogic

import (
	"errors"
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	tests := []struct {
		input    string
		want     time.Time
		dateOnly bool
		format   string
	}{
		{"2021-05-20", time.Date(2021, 5, 20, 0, 0, 0, 0, time.UTC), true, "2021-05-20"},
		{"2021-05-20T10:12:22", time.Date(2021, 5, 20, 10, 12, 22, 0, time.UTC), false, "2021-05-20T10:12:22Z"},
		{"2021-05-20T10:12:22Z", time.Date(2021, 5, 20, 10, 12, 22, 0, time.UTC), false, "2021-05-20T10:12:22Z"},
		{"2021-05-20T10:12:22.5Z", time.Date(2021, 5, 20, 10, 12, 22, 500000000, time.UTC), false, "2021-05-20T10:12:22.5Z"},
		{"2021-05-20T10:12:22+02:00", time.Date(2021, 5, 20, 8, 12, 22, 0, time.UTC), false, "2021-05-20T10:12:22+02:00"},
		{"2021-05-20T10:12:22+0200", time.Date(2021, 5, 20, 8, 12, 22, 0, time.UTC), false, "2021-05-20T10:12:22+02:00"},
		{"2021-05-20T10:12-01", time.Date(2021, 5, 20, 11, 12, 0, 0, time.UTC), false, "2021-05-20T10:12:00-01:00"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDateTime(tt.input)
			if err != nil {
				t.Fatalf("ParseDateTime(%q) error = %v, want nil", tt.input, err)
			}
			if !got.Time.Equal(tt.want) {
				t.Errorf("ParseDateTime(%q) = %v, want %v", tt.input, got.Time, tt.want)
			}
			if got.DateOnly != tt.dateOnly {
				t.Errorf("DateOnly = %v, want %v", got.DateOnly, tt.dateOnly)
			}
			if s := FormatDateTime(got); s != tt.format {
				t.Errorf("FormatDateTime() = %q, want %q", s, tt.format)
			}
		})
	}
}

func TestParseDateTime_Invalid(t *testing.T) {
	for _, input := range []string{"", "2021", "2021-02-30", "2021-13-01", "2021-01-01T25:00:00Z", "yesterday", "2021-01-01T10:00:00+25:00"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseDateTime(input); !errors.Is(err, ErrInvalidDateTime) {
				t.Errorf("ParseDateTime(%q) error = %v, want ErrInvalidDateTime", input, err)
			}
		})
	}
}

func TestPlusTime(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		amount int64
		unit   TimeUnit
		want   string
	}{
		{"days keep date precision", "2021-01-01", 21, UnitDay, "2021-01-22"},
		{"negative days", "2021-03-01", -1, UnitDay, "2021-02-28"},
		{"month clamps to end of month", "2021-01-31", 1, UnitMonth, "2021-02-28"},
		{"month into leap february", "2020-01-31", 1, UnitMonth, "2020-02-29"},
		{"negative months across year", "2021-01-15", -2, UnitMonth, "2020-11-15"},
		{"leap day plus year", "2020-02-29", 1, UnitYear, "2021-02-28"},
		{"hours drop date precision", "2021-01-01", 36, UnitHour, "2021-01-02T12:00:00Z"},
		{"hours keep offset", "2021-06-01T10:00:00+02:00", 72, UnitHour, "2021-06-04T10:00:00+02:00"},
		{"minutes", "2021-06-01T10:00:00Z", -90, UnitMinute, "2021-06-01T08:30:00Z"},
		{"seconds", "2021-06-01T23:59:59Z", 1, UnitSecond, "2021-06-02T00:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, err := ParseDateTime(tt.start)
			if err != nil {
				t.Fatalf("ParseDateTime() error = %v", err)
			}
			got := FormatDateTime(PlusTime(start, tt.amount, tt.unit))
			if got != tt.want {
				t.Errorf("PlusTime(%s, %d, %s) = %s, want %s", tt.start, tt.amount, tt.unit, got, tt.want)
			}
		})
	}
}

func TestParseTimeUnit(t *testing.T) {
	for _, name := range []string{"day", "DAY", "Day", "hOuR", "second"} {
		if _, ok := ParseTimeUnit(name); !ok {
			t.Errorf("ParseTimeUnit(%q) ok = false, want true", name)
		}
	}
	for _, name := range []string{"", "days", "week", "fortnight"} {
		if _, ok := ParseTimeUnit(name); ok {
			t.Errorf("ParseTimeUnit(%q) ok = true, want false", name)
		}
	}
}

func TestDateTimeAnchorIn(t *testing.T) {
	cest := time.FixedZone("", 2*3600)

	bare, err := ParseDateTime("2021-06-15")
	if err != nil {
		t.Fatalf("ParseDateTime() error = %v", err)
	}
	got := bare.AnchorIn(cest)
	if want := time.Date(2021, 6, 15, 0, 0, 0, 0, cest); !got.Time.Equal(want) {
		t.Errorf("AnchorIn() = %v, want %v", got.Time, want)
	}
	if !got.DateOnly {
		t.Errorf("AnchorIn() DateOnly = false, want true")
	}
	if s := FormatDateTime(got); s != "2021-06-15" {
		t.Errorf("FormatDateTime(AnchorIn()) = %s, want 2021-06-15", s)
	}

	zoned, err := ParseDateTime("2021-06-15T00:30:00Z")
	if err != nil {
		t.Fatalf("ParseDateTime() error = %v", err)
	}
	if got := zoned.AnchorIn(cest); !got.Time.Equal(zoned.Time) {
		t.Errorf("AnchorIn() moved a zoned value: %v, want %v", got.Time, zoned.Time)
	}
}
