package transcode

import (
	"errors"
	"testing"

	"camrelay/internal/media/ffprobe"
)

func TestResolveConfiguredWins(t *testing.T) {
	detected := []ffprobe.Field[ffprobe.Rate]{
		ffprobe.Present(ffprobe.Rate{Num: 30, Den: 1}),
		ffprobe.Present(ffprobe.Rate{Num: 30000, Den: 1001}),
		ffprobe.Absent[ffprobe.Rate](nil),
	}
	for _, configured := range []int{1, 12, 25, 60} {
		for _, d := range detected {
			plan := Resolve(configured, d, 25)
			if plan.Source != PlanConfigured || plan.Rate != ffprobe.RateFromInt(configured) {
				t.Fatalf("Resolve(%d, %+v) = %+v", configured, d, plan)
			}
		}
	}
}

func TestResolveDetectedWhenNotConfigured(t *testing.T) {
	rate := ffprobe.Rate{Num: 30000, Den: 1001}
	for _, configured := range []int{0, -1, -30} {
		plan := Resolve(configured, ffprobe.Present(rate), 25)
		if plan.Source != PlanDetected || plan.Rate != rate {
			t.Fatalf("Resolve(%d) = %+v", configured, plan)
		}
	}
}

func TestResolveFallback(t *testing.T) {
	cases := []ffprobe.Field[ffprobe.Rate]{
		ffprobe.Absent[ffprobe.Rate](errors.New("no stream")),
		ffprobe.Present(ffprobe.Rate{Num: 0, Den: 1}),
	}
	for _, detected := range cases {
		plan := Resolve(0, detected, 0)
		if plan.Source != PlanFallback || plan.Rate != ffprobe.RateFromInt(25) {
			t.Fatalf("expected fallback 25, got %+v", plan)
		}
	}
	if plan := Resolve(0, ffprobe.Absent[ffprobe.Rate](nil), 15); plan.Rate != ffprobe.RateFromInt(15) {
		t.Fatalf("expected configured fallback 15, got %+v", plan)
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{25.0, "25"},
		{29.97, "29.970"},
		{23.999, "24"},
		{24.001, "24"},
		{23.998, "23.998"},
		{30000.0 / 1001.0, "29.970"},
		{12.5, "12.500"},
		{0.5, "0.500"},
	}
	for _, tt := range tests {
		if got := FormatRate(tt.in); got != tt.want {
			t.Errorf("FormatRate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPlanSourceString(t *testing.T) {
	if PlanConfigured.String() != "configured" || PlanDetected.String() != "detected" || PlanFallback.String() != "fallback" {
		t.Fatal("unexpected plan source names")
	}
}
