package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"glucowatch/internal/config"
	"glucowatch/internal/model"
)

func testNow() time.Time {
	return time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
}

// series builds n readings ending at now, spaced five minutes apart,
// starting at start mg/dL and moving by step per reading.
func series(start, step, n int, now time.Time) []model.GlucoseReading {
	out := make([]model.GlucoseReading, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.GlucoseReading{
			Timestamp: now.Add(-time.Duration(n-1-i) * 5 * time.Minute),
			ValueMgDl: start + i*step,
		})
	}
	return out
}

func testPipeline() *Pipeline {
	return NewPipeline(config.DefaultConfig().Prediction)
}

func runPipeline(t *testing.T, readings []model.GlucoseReading) *Output {
	t.Helper()
	out, err := testPipeline().Run(Input{
		Readings:     readings,
		Now:          testNow(),
		LookbackDays: 1,
	}, config.DefaultConfig().Alerting)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return out
}

func TestFlatSeriesPredictsNoChange(t *testing.T) {
	out := runPipeline(t, series(120, 0, 12, testNow()))

	if out.Quality.Tier != model.TierExcellent {
		t.Fatalf("expected EXCELLENT tier, got %s", out.Quality.Tier)
	}
	if out.Prediction.AlgorithmTag != AlgorithmWeightedTrend {
		t.Fatalf("expected weighted trend algorithm, got %s", out.Prediction.AlgorithmTag)
	}
	for _, hp := range out.Prediction.HorizonPoints {
		if math.Abs(hp.ValueMgDl-120) > 0.01 {
			t.Fatalf("flat series should predict 120 at %d min, got %.2f", hp.MinutesAhead, hp.ValueMgDl)
		}
	}
	if out.Risk.Level != model.RiskLow {
		t.Fatalf("expected LOW risk, got %s", out.Risk.Level)
	}
	if out.Prediction.Validation == nil || !out.Prediction.Validation.IsValid {
		t.Fatalf("flat series prediction should validate")
	}
}

func TestFallingSeriesRaisesHighRisk(t *testing.T) {
	out := runPipeline(t, series(146, -4, 15, testNow()))

	hp, ok := out.Prediction.Horizon(30)
	if !ok {
		t.Fatalf("missing 30-minute horizon")
	}
	if hp.ValueMgDl >= 70 {
		t.Fatalf("expected 30-minute prediction below 70, got %.2f", hp.ValueMgDl)
	}
	if out.Risk.Level != model.RiskHigh {
		t.Fatalf("expected HIGH risk, got %s", out.Risk.Level)
	}
	if out.Risk.Severity <= 0 || out.Risk.Severity > 100 {
		t.Fatalf("severity out of range: %.2f", out.Risk.Severity)
	}
	if out.Prediction.AlgorithmTag != AlgorithmWeightedTrend {
		t.Fatalf("steady fall should not need the fallback, got %s", out.Prediction.AlgorithmTag)
	}
}

func TestSensorJumpFallsBackToConservative(t *testing.T) {
	readings := series(120, 0, 14, testNow().Add(-5*time.Minute))
	readings = append(readings, model.GlucoseReading{Timestamp: testNow(), ValueMgDl: 180})

	out := runPipeline(t, readings)

	if out.Prediction.AlgorithmTag != AlgorithmConservative {
		t.Fatalf("expected conservative fallback, got %s", out.Prediction.AlgorithmTag)
	}
	if out.Prediction.Validation == nil || !out.Prediction.Validation.HasFlag(model.FlagTrendInconsistency) {
		t.Fatalf("expected trend inconsistency flag")
	}
	maxChange := math.Min(0.1*180, 15)
	for _, hp := range out.Prediction.HorizonPoints {
		if math.Abs(hp.ValueMgDl-180) > maxChange+0.01 {
			t.Fatalf("fallback change at %d min exceeds clamp: %.2f", hp.MinutesAhead, hp.ValueMgDl)
		}
	}
	if len(out.Prediction.Warnings) == 0 {
		t.Fatalf("validation warnings should carry onto the fallback result")
	}
}

func TestTooFewReadingsRejected(t *testing.T) {
	_, err := testPipeline().Run(Input{
		Readings:     series(120, 0, 4, testNow()),
		Now:          testNow(),
		LookbackDays: 1,
	}, config.DefaultConfig().Alerting)

	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if insufficient.Required != 20 {
		t.Fatalf("critical tier should require 20 points, got %d", insufficient.Required)
	}
}

func TestLookbackBoundsRejected(t *testing.T) {
	for _, days := range []int{0, 8} {
		_, err := testPipeline().Run(Input{
			Readings:     series(120, 0, 12, testNow()),
			Now:          testNow(),
			LookbackDays: days,
		}, config.DefaultConfig().Alerting)
		var insufficient *InsufficientDataError
		if !errors.As(err, &insufficient) {
			t.Fatalf("lookback %d should be rejected, got %v", days, err)
		}
	}
}

func TestConfidenceStaysInBounds(t *testing.T) {
	now := testNow()
	lo := ScoreConfidence(0, model.QualityAssessment{}, 0, now, nil, 300, 0)
	hi := ScoreConfidence(50, model.QualityAssessment{OverallScore: 100}, 1, now, nil, 110, 30)
	if lo < 10 || lo > 100 || hi < 10 || hi > 100 {
		t.Fatalf("confidence out of [10,100]: lo=%.2f hi=%.2f", lo, hi)
	}
	if hi <= lo {
		t.Fatalf("better inputs should score higher: lo=%.2f hi=%.2f", lo, hi)
	}
}

func TestQualityCriticalBelowFivePoints(t *testing.T) {
	q := AssessQuality(series(120, 0, 4, testNow()), testNow())
	if q.Tier != model.TierCritical {
		t.Fatalf("expected CRITICAL, got %s", q.Tier)
	}
}

func TestQualityDegradesWithNoise(t *testing.T) {
	now := testNow()
	clean := AssessQuality(series(120, 0, 12, now), now)

	noisy := series(120, 0, 12, now)
	for i := range noisy {
		if i%2 == 0 {
			noisy[i].ValueMgDl += 40
		}
	}
	dirty := AssessQuality(noisy, now)

	if dirty.OverallScore >= clean.OverallScore {
		t.Fatalf("noise should lower the score: clean=%.1f noisy=%.1f", clean.OverallScore, dirty.OverallScore)
	}
	if dirty.AnomalyCount == 0 {
		t.Fatalf("expected anomalies in the noisy series")
	}
}

func TestCleanDropsImplausibleReadings(t *testing.T) {
	now := testNow()
	readings := []model.GlucoseReading{
		{Timestamp: now.Add(-10 * time.Minute), ValueMgDl: 120},
		{Timestamp: now.Add(-5 * time.Minute), ValueMgDl: 1500},
		{ValueMgDl: 110},
		{Timestamp: now, ValueMgDl: 118},
	}
	out := Clean(readings, model.TierGood)
	if len(out) != 2 {
		t.Fatalf("expected 2 readings after cleaning, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Before(out[i-1].Timestamp) {
			t.Fatalf("cleaned readings out of order")
		}
	}
}

func TestRiskThresholdBoundaries(t *testing.T) {
	alerting := config.DefaultConfig().Alerting
	cases := []struct {
		predicted float64
		want      model.RiskLevel
	}{
		{69, model.RiskHigh},
		{70, model.RiskMedium},
		{79, model.RiskMedium},
		{80, model.RiskLow},
	}
	for _, tc := range cases {
		pred := &model.PredictionResult{
			CurrentValueMgDl: 100,
			HorizonPoints: []model.HorizonPoint{
				{MinutesAhead: 30, ValueMgDl: tc.predicted, ValueMmolL: model.MgDlToMmolL(tc.predicted)},
			},
		}
		got := AssessRisk(pred, alerting)
		if got.Level != tc.want {
			t.Fatalf("predicted %.0f: expected %s, got %s", tc.predicted, tc.want, got.Level)
		}
	}
}

func TestMealRaisesProjection(t *testing.T) {
	now := testNow()
	treatments := []model.TreatmentEvent{
		{Timestamp: now.Add(-30 * time.Minute), Kind: model.TreatmentMeal, CarbsGrams: 60},
	}
	ctx := ExtractLifestyle(treatments, now)
	if !ctx.HasData || ctx.CarbImpact <= 0 {
		t.Fatalf("meal should produce positive carb impact, got %+v", ctx)
	}
	if ctx.AdjustmentAt(10) <= ctx.AdjustmentAt(60) {
		t.Fatalf("adjustment should fade with horizon")
	}
}

func TestExerciseLowersProjection(t *testing.T) {
	now := testNow()
	treatments := []model.TreatmentEvent{
		{Timestamp: now.Add(-20 * time.Minute), Kind: model.TreatmentExercise, DurationMinutes: 45, Notes: "evening run"},
	}
	ctx := ExtractLifestyle(treatments, now)
	if ctx.ExerciseImpact >= 0 {
		t.Fatalf("exercise should produce negative impact, got %.2f", ctx.ExerciseImpact)
	}

	light := ExtractLifestyle([]model.TreatmentEvent{
		{Timestamp: now.Add(-20 * time.Minute), Kind: model.TreatmentExercise, DurationMinutes: 45, Notes: "short walk"},
	}, now)
	if light.ExerciseImpact <= ctx.ExerciseImpact {
		t.Fatalf("a run should outweigh a walk: run=%.2f walk=%.2f", ctx.ExerciseImpact, light.ExerciseImpact)
	}
}

func TestStaleSeriesWarns(t *testing.T) {
	out := runPipeline(t, series(120, 0, 12, testNow().Add(-45*time.Minute)))
	found := false
	for _, w := range out.Prediction.Warnings {
		if w != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a staleness warning, got %v", out.Prediction.Warnings)
	}
}
