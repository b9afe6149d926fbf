package risk

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
)

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name     string
		hours    float64
		mtbf     float64
		tier     Tier
		score    string
		forecast string
		prob5d   string
	}{
		{"just over high threshold", 16300, 18000, TierHigh, "91%", "1700h restantes", "100%"},
		{"exactly medium threshold stays low", 12600, 18000, TierLow, "70%", "5400h restantes", "80%"},
		{"at mtbf", 18000, 18000, TierHigh, "100%", "0h restantes", "100%"},
		{"brand new", 0, 10000, TierLow, "0%", "10000h restantes", "10%"},
		{"medium band", 14400, 18000, TierMedium, "80%", "3600h restantes", "90%"},
		{"exactly high threshold stays medium", 9000, 10000, TierMedium, "90%", "1000h restantes", "100%"},
		{"far past mtbf", 50000, 10000, TierHigh, "100%", "0h restantes", "100%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.hours, tt.mtbf)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got.Tier != tt.tier {
				t.Fatalf("tier = %s, want %s", got.Tier, tt.tier)
			}
			if got.RiskScore() != tt.score {
				t.Fatalf("risk score = %s, want %s", got.RiskScore(), tt.score)
			}
			if got.FailureForecast() != tt.forecast {
				t.Fatalf("forecast = %q, want %q", got.FailureForecast(), tt.forecast)
			}
			if got.FailureProbability() != tt.prob5d {
				t.Fatalf("prob5d = %s, want %s", got.FailureProbability(), tt.prob5d)
			}
		})
	}
}

func TestClassifyRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		hours float64
		mtbf  float64
		field string
	}{
		{"zero mtbf", 100, 0, "mtbf"},
		{"negative mtbf", 100, -5, "mtbf"},
		{"nan mtbf", 100, math.NaN(), "mtbf"},
		{"inf mtbf", 100, math.Inf(1), "mtbf"},
		{"nan hours", math.NaN(), 1000, "hoursUsed"},
		{"inf hours", math.Inf(-1), 1000, "hoursUsed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.hours, tt.mtbf)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("Classify() error = %v, want ErrInvalidParameter", err)
			}
			var ipe *InvalidParameterError
			if !errors.As(err, &ipe) {
				t.Fatalf("error %T is not *InvalidParameterError", err)
			}
			if ipe.Field != tt.field {
				t.Fatalf("field = %s, want %s", ipe.Field, tt.field)
			}
			if got != (Assessment{}) {
				t.Fatalf("expected zero assessment, got %+v", got)
			}
		})
	}
}

func TestClassifyProperties(t *testing.T) {
	mtbfs := []float64{1, 7.5, 1000, 18000}
	for _, mtbf := range mtbfs {
		for step := 0; step <= 300; step++ {
			hours := mtbf * float64(step) / 200
			a, err := Classify(hours, mtbf)
			if err != nil {
				t.Fatalf("Classify(%v, %v) error = %v", hours, mtbf, err)
			}

			ratio := hours / mtbf
			var want Tier
			switch {
			case ratio > 0.9:
				want = TierHigh
			case ratio > 0.7:
				want = TierMedium
			default:
				want = TierLow
			}
			if a.Tier != want {
				t.Fatalf("Classify(%v, %v) tier = %s, want %s", hours, mtbf, a.Tier, want)
			}
			if a.Score < 0 || a.Score > 100 {
				t.Fatalf("score %d out of range", a.Score)
			}
			if a.ForecastHours < 0 {
				t.Fatalf("forecast %d is negative", a.ForecastHours)
			}
			if a.FailureProbability5d > 100 {
				t.Fatalf("prob5d %d above ceiling", a.FailureProbability5d)
			}
			if a.Score < 90 && a.FailureProbability5d < a.Score {
				t.Fatalf("prob5d %d below score %d", a.FailureProbability5d, a.Score)
			}
		}
	}
}

func TestClassifyHugeInputs(t *testing.T) {
	tests := []struct {
		name         string
		hours, mtbf  float64
		wantForecast int64
	}{
		{name: "mtbf above int64", hours: 0, mtbf: 1e19, wantForecast: math.MaxInt64},
		{name: "largest mtbf", hours: 0, mtbf: math.MaxFloat64, wantForecast: math.MaxInt64},
		{name: "difference overflows", hours: -math.MaxFloat64, mtbf: math.MaxFloat64, wantForecast: math.MaxInt64},
		{name: "hours above int64", hours: 1e19, mtbf: 1, wantForecast: 0},
		{name: "just below the limit", hours: 0, mtbf: 1 << 62, wantForecast: 1 << 62},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Classify(tt.hours, tt.mtbf)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if a.ForecastHours != tt.wantForecast {
				t.Fatalf("got forecast %d, want %d", a.ForecastHours, tt.wantForecast)
			}
			if strings.HasPrefix(a.FailureForecast(), "-") {
				t.Fatalf("got forecast %q, want a non-negative value", a.FailureForecast())
			}
			if a.Score < 0 || a.Score > 100 || a.FailureProbability5d < 0 || a.FailureProbability5d > 100 {
				t.Fatalf("got score %d and prob5d %d, want both within [0, 100]", a.Score, a.FailureProbability5d)
			}
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	first, err := Classify(16300, 18000)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	second, err := Classify(16300, 18000)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if first != second {
		t.Fatalf("repeated call differs: %+v vs %+v", first, second)
	}
}

func TestClassifyConcurrentCallers(t *testing.T) {
	inputs := [][2]float64{{16300, 18000}, {12600, 18000}, {18000, 18000}, {0, 10000}}
	want := make([]Assessment, len(inputs))
	for i, in := range inputs {
		a, err := Classify(in[0], in[1])
		if err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		want[i] = a
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				i := (g + n) % len(inputs)
				got, err := Classify(inputs[i][0], inputs[i][1])
				if err != nil || got != want[i] {
					select {
					case errs <- "concurrent result mismatch":
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	if msg, ok := <-errs; ok {
		t.Fatal(msg)
	}
}

func TestPlaceholderComponentHealth(t *testing.T) {
	got := PlaceholderComponentHealth([]string{"motor", "bomba", "filtro", "correia", "rolamento", "eixo", "valvula", "sensor"})
	want := []int{100, 85, 70, 55, 40, 25, 10, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.HealthPercent != want[i] {
			t.Fatalf("component %d health = %d, want %d", i, c.HealthPercent, want[i])
		}
		if !c.Placeholder {
			t.Fatalf("component %d not flagged as placeholder", i)
		}
	}
	if len(PlaceholderComponentHealth(nil)) != 0 {
		t.Fatal("expected empty result for no components")
	}
}
