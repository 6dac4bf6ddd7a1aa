package availability

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{"00:00", 0, false},
		{"08:30", 8*60 + 30, false},
		{"13:05:00", 13*60 + 5, false},
		{"24:00", endOfDay, false},
		{"24:01", 0, true},
		{"8:30", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClock_JSON(t *testing.T) {
	var in BreakInput
	if err := json.Unmarshal([]byte(`{"dayOfWeek":1,"startTime":"12:00","endTime":"13:30"}`), &in); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if in.StartTime != 12*60 || in.EndTime != 13*60+30 {
		t.Errorf("unexpected clocks %v/%v", in.StartTime, in.EndTime)
	}
	b, _ := json.Marshal(in.EndTime)
	if string(b) != `"13:30"` {
		t.Errorf("marshal = %s", b)
	}
	if err := json.Unmarshal([]byte(`{"startTime":1200}`), &in); err == nil {
		t.Error("expected error for numeric time of day")
	}
}

func TestClock_On(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	day := time.Date(2026, 3, 2, 22, 0, 0, 0, loc)
	got := Clock(9*60 + 15).On(day)
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("On = %v, want %v", got, want)
	}
}

func TestClock_PGRoundTrip(t *testing.T) {
	c := Clock(17*60 + 45)
	if got := clockFromPG(c.pg()); got != c {
		t.Errorf("round trip = %v, want %v", got, c)
	}
}
