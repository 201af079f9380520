package engagement

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func periodsOf(durations ...float64) []IdlePeriod {
	out := make([]IdlePeriod, len(durations))
	for i, d := range durations {
		out[i] = IdlePeriod{Duration: d}
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		active  float64
		total   float64
		periods []IdlePeriod
		want    int
	}{
		{name: "no time", active: 0, total: 0, want: 0},
		{name: "fully active earns bonus but clamps", active: 100, total: 100, want: 100},
		{name: "mostly active with bonus", active: 85, total: 100, periods: periodsOf(15), want: 95},
		{name: "no bonus at three periods", active: 510, total: 600, periods: periodsOf(5, 5, 5), want: 85},
		{name: "no bonus at 80 percent", active: 80, total: 100, periods: periodsOf(20), want: 80},
		// 6 periods over 2 minutes = 3/min -> penalty 20
		{name: "frequency penalty", active: 60, total: 120, periods: periodsOf(10, 10, 10, 10, 10, 10), want: 30},
		// 10 periods over 1 minute -> penalty capped at 20
		{name: "frequency penalty capped", active: 50, total: 60, periods: periodsOf(1, 1, 1, 1, 1, 1, 1, 1, 1, 1), want: 63},
		// 2 long periods (-10), no frequency penalty over 10 minutes, no bonus (<80%)
		{name: "long idle penalty", active: 300, total: 600, periods: periodsOf(150, 150), want: 40},
		{name: "long idle penalty capped", active: 100, total: 1000, periods: periodsOf(200, 200, 200, 200), want: 0},
		{name: "exactly 120s is not long", active: 480, total: 600, periods: periodsOf(120), want: 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.active, tt.total, tt.periods)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}
