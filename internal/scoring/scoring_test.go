package scoring

import (
	"testing"
	"time"
)

func TestScoreKnownValues(t *testing.T) {
	cases := []struct {
		name      string
		taken     time.Duration
		want      int
	}{
		{"fast answer", 2 * time.Second, 930},
		{"slow answer", 18 * time.Second, 370},
		{"past limit", 25 * time.Second, 0},
		{"at limit", 20 * time.Second, 0},
		{"instant", 0, 1000},
		{"negative treated as instant", -time.Second, 1000},
	}
	for _, tc := range cases {
		got := Score(1000, 20*time.Second, tc.taken, 0.3)
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestScoreMonotonicallyDecreasing(t *testing.T) {
	limit := 20 * time.Second
	prev := Score(1000, limit, 0, 0.3)
	for ms := 100; ms < 20000; ms += 100 {
		got := Score(1000, limit, time.Duration(ms)*time.Millisecond, 0.3)
		if got > prev {
			t.Fatalf("score increased from %d to %d at t=%dms", prev, got, ms)
		}
		prev = got
	}
}

func TestScoreBounds(t *testing.T) {
	limit := 15 * time.Second
	for ms := 0; ms < 15000; ms += 250 {
		got := Score(800, limit, time.Duration(ms)*time.Millisecond, 0.25)
		if got < 200 || got > 800 {
			t.Fatalf("score %d outside [200, 800] at t=%dms", got, ms)
		}
	}
}

func TestScoreDegenerateInputs(t *testing.T) {
	if got := Score(0, 20*time.Second, time.Second, 0.3); got != 0 {
		t.Fatalf("zero base points should score 0, got %d", got)
	}
	if got := Score(500, 0, 0, 0.3); got != 500 {
		t.Fatalf("zero limit with instant answer should award full points, got %d", got)
	}
	if got := Score(500, 0, time.Millisecond, 0.3); got != 0 {
		t.Fatalf("zero limit with late answer should score 0, got %d", got)
	}
	if got := Score(1000, 10*time.Second, 9999*time.Millisecond, 0); got < 0 {
		t.Fatalf("alpha 0 should still never go negative, got %d", got)
	}
	if got := Score(1000, 10*time.Second, 5*time.Second, 1); got != 1000 {
		t.Fatalf("alpha 1 should always award full points, got %d", got)
	}
}
