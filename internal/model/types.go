package model

import (
	"math"
	"time"
)

// Direction is the advisory trend arrow reported by the CGM alongside a
// reading. It is never used for computation.
type Direction string

const (
	DirectionFlat          Direction = "Flat"
	DirectionFortyFiveUp   Direction = "FortyFiveUp"
	DirectionSingleUp      Direction = "SingleUp"
	DirectionDoubleUp      Direction = "DoubleUp"
	DirectionFortyFiveDown Direction = "FortyFiveDown"
	DirectionSingleDown    Direction = "SingleDown"
	DirectionDoubleDown    Direction = "DoubleDown"
)

type GlucoseReading struct {
	Timestamp time.Time `json:"timestamp"`
	ValueMgDl int       `json:"value_mgdl"`
	Direction Direction `json:"direction,omitempty"`
}

func (r GlucoseReading) ValueMmolL() float64 {
	return MgDlToMmolL(float64(r.ValueMgDl))
}

type TreatmentKind string

const (
	TreatmentMeal       TreatmentKind = "meal"
	TreatmentExercise   TreatmentKind = "exercise"
	TreatmentCorrection TreatmentKind = "correction"
)

type TreatmentEvent struct {
	Timestamp       time.Time     `json:"timestamp"`
	Kind            TreatmentKind `json:"kind"`
	CarbsGrams      float64       `json:"carbs_grams,omitempty"`
	DurationMinutes float64       `json:"duration_minutes,omitempty"`
	Notes           string        `json:"notes,omitempty"`
}

type QualityTier string

const (
	TierExcellent QualityTier = "EXCELLENT"
	TierGood      QualityTier = "GOOD"
	TierFair      QualityTier = "FAIR"
	TierPoor      QualityTier = "POOR"
	TierCritical  QualityTier = "CRITICAL"
)

// MinPoints is the minimum cleaned reading count the predictor requires at
// this quality tier. Worse data demands more points.
func (t QualityTier) MinPoints() int {
	switch t {
	case TierExcellent:
		return 5
	case TierGood:
		return 7
	case TierFair:
		return 10
	case TierPoor:
		return 15
	default:
		return 20
	}
}

// TrendMultiplier dampens trend confidence as series quality degrades.
func (t QualityTier) TrendMultiplier() float64 {
	switch t {
	case TierExcellent:
		return 1.0
	case TierGood:
		return 0.9
	case TierFair:
		return 0.8
	case TierPoor:
		return 0.6
	default:
		return 0.4
	}
}

type QualityAssessment struct {
	TimelinessScore  float64     `json:"timeliness_score"`
	ConsistencyScore float64     `json:"consistency_score"`
	OverallScore     float64     `json:"overall_score"`
	Tier             QualityTier `json:"tier"`
	AnomalyCount     int         `json:"anomaly_count"`
}

type TrendEstimate struct {
	Weights              []float64 `json:"weights"`
	AverageChangePerStep float64   `json:"average_change_per_step"`
	TrendConfidence      float64   `json:"trend_confidence"`
}

type HorizonPoint struct {
	MinutesAhead int     `json:"minutes_ahead"`
	ValueMgDl    float64 `json:"value_mgdl"`
	ValueMmolL   float64 `json:"value_mmol"`
}

type PredictionResult struct {
	ID                string            `json:"id"`
	GeneratedAt       time.Time         `json:"generated_at"`
	CurrentValueMgDl  float64           `json:"current_value_mgdl"`
	CurrentValueMmolL float64           `json:"current_value_mmol"`
	HorizonPoints     []HorizonPoint    `json:"horizon_points"`
	ConfidenceScore   float64           `json:"confidence_score"`
	AlgorithmTag      string            `json:"algorithm_tag"`
	InputPointCount   int               `json:"input_point_count"`
	Warnings          []string          `json:"warnings,omitempty"`
	Validation        *ValidationResult `json:"validation,omitempty"`
}

// Horizon returns the projected point for minutesAhead, if present.
func (p *PredictionResult) Horizon(minutesAhead int) (HorizonPoint, bool) {
	for _, hp := range p.HorizonPoints {
		if hp.MinutesAhead == minutesAhead {
			return hp, true
		}
	}
	return HorizonPoint{}, false
}

const (
	FlagTrendInconsistency          = "trend_inconsistency"
	FlagHistoricalInaccuracy        = "historical_inaccuracy"
	FlagPhysiologicalImplausibility = "physiological_implausibility"
)

type ValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	ValidationScore float64  `json:"validation_score"`
	TrendScore      float64  `json:"trend_score"`
	HistoryScore    float64  `json:"history_score"`
	PhysioScore     float64  `json:"physio_score"`
	Flags           []string `json:"flags,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

func (v *ValidationResult) HasFlag(flag string) bool {
	for _, f := range v.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
)

type RiskAssessment struct {
	Level               RiskLevel `json:"level"`
	Severity            float64   `json:"severity"`
	Description         string    `json:"description"`
	HighThresholdMgDl   float64   `json:"high_threshold_mgdl"`
	MediumThresholdMgDl float64   `json:"medium_threshold_mgdl"`
}

type AlertStatus string

const (
	AlertActive       AlertStatus = "ACTIVE"
	AlertAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertDismissed    AlertStatus = "DISMISSED"
)

type Alert struct {
	ID                  string      `json:"id"`
	CreatedAt           time.Time   `json:"created_at"`
	PredictedValueMgDl  float64     `json:"predicted_value_mgdl"`
	PredictedValueMmolL float64     `json:"predicted_value_mmol"`
	RiskLevel           RiskLevel   `json:"risk_level"`
	Status              AlertStatus `json:"status"`
	AcknowledgedAt      *time.Time  `json:"acknowledged_at,omitempty"`
	NotificationSent    bool        `json:"notification_sent"`
	NotificationSentAt  *time.Time  `json:"notification_sent_at,omitempty"`
}

// TimeOfDayPeriod buckets the clock into the four CGM noise periods.
type TimeOfDayPeriod string

const (
	PeriodNight     TimeOfDayPeriod = "night"
	PeriodMorning   TimeOfDayPeriod = "morning"
	PeriodAfternoon TimeOfDayPeriod = "afternoon"
	PeriodEvening   TimeOfDayPeriod = "evening"
)

func PeriodOf(t time.Time) TimeOfDayPeriod {
	switch h := t.Hour(); {
	case h < 6:
		return PeriodNight
	case h < 12:
		return PeriodMorning
	case h < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// GlucoseStats summarizes a reading series in mmol/L.
type GlucoseStats struct {
	AvgMmolL           float64 `json:"avg_mmol"`
	MinMmolL           float64 `json:"min_mmol"`
	MaxMmolL           float64 `json:"max_mmol"`
	StdDevMmolL        float64 `json:"std_dev_mmol"`
	CVPercent          float64 `json:"cv_percent"`
	InRangeCount       int     `json:"in_range_count"`
	TotalCount         int     `json:"total_count"`
	InRangePercent     float64 `json:"in_range_percent"`
	HbA1cADAGPercent   float64 `json:"hba1c_adag_percent"`
	HbA1cNathanPercent float64 `json:"hba1c_nathan_percent"`
	HbA1cADAGMmolMol   float64 `json:"hba1c_adag_mmolmol"`
	HbA1cNathanMmolMol float64 `json:"hba1c_nathan_mmolmol"`
}

// MgDlToMmolL converts mg/dL to mmol/L rounded to one decimal.
func MgDlToMmolL(mgdl float64) float64 {
	return math.Round(mgdl/18.0*10) / 10
}
