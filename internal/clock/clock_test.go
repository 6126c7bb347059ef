package clock

import (
	"errors"
	"testing"
	"time"
)

func TestPlayback_Set(t *testing.T) {
	start := time.UnixMilli(1_000)
	tests := []struct {
		name    string
		steps   []time.Time
		wantNow time.Time
		wantErr error
	}{
		{"forward", []time.Time{time.UnixMilli(2_000), time.UnixMilli(3_000)}, time.UnixMilli(3_000), nil},
		{"same instant twice", []time.Time{time.UnixMilli(2_000), time.UnixMilli(2_000)}, time.UnixMilli(2_000), nil},
		{"regression keeps previous time", []time.Time{time.UnixMilli(2_000), time.UnixMilli(1_500)}, time.UnixMilli(2_000), ErrRegression},
		{"before start", []time.Time{time.UnixMilli(999)}, start, ErrRegression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPlayback(start)
			var err error
			for _, s := range tt.steps {
				if err = c.Set(s); err != nil {
					break
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Set() error = %v, want %v", err, tt.wantErr)
			}
			if !c.Now().Equal(tt.wantNow) {
				t.Errorf("Now() = %v, want %v", c.Now(), tt.wantNow)
			}
		})
	}
}

func TestPlayback_ZeroStart(t *testing.T) {
	c := NewPlayback(time.Time{})
	if !c.Now().IsZero() {
		t.Fatalf("Now() = %v, want zero", c.Now())
	}
	if err := c.Set(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}
