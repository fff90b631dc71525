package analytics

import (
	"errors"
	"testing"
	"time"
)

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		input   string
		want    Period
		wantErr bool
	}{
		{"", PeriodAll, false},
		{"all", PeriodAll, false},
		{"day", PeriodDay, false},
		{" Week ", PeriodWeek, false},
		{"MONTH", PeriodMonth, false},
		{"year", PeriodYear, false},
		{"fortnight", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePeriod(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPeriod) {
					t.Fatalf("Expected ErrInvalidPeriod, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPeriodSince(t *testing.T) {
	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		period Period
		want   time.Time
	}{
		{PeriodDay, time.Date(2026, 3, 30, 10, 0, 0, 0, time.UTC)},
		{PeriodWeek, time.Date(2026, 3, 24, 10, 0, 0, 0, time.UTC)},
		// AddDate normalises 2026-02-31 to 2026-03-03.
		{PeriodMonth, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)},
		{PeriodYear, time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got := tt.period.Since(now)
		if got == nil || !got.Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.period, tt.want, got)
		}
	}

	if PeriodAll.Since(now) != nil {
		t.Error("Expected no lower bound for all")
	}
}
