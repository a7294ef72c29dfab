package domain

// EvaluationRow is one gold_model_evaluation row: the confusion matrix
// and derived metrics for a single archetype (or OVERALL) against the
// injected ground-truth labels.
//
// All derived metrics guard their denominators: a zero denominator yields
// 0, never NaN or an error, since archetypes with no ground-truth
// positives are an expected steady-state condition.
type EvaluationRow struct {
	Archetype         Archetype `json:"archetype"`
	TotalTransactions int64     `json:"totalTransactions"`

	TruePositives  int64 `json:"truePositives"`
	FalsePositives int64 `json:"falsePositives"`
	FalseNegatives int64 `json:"falseNegatives"`
	TrueNegatives  int64 `json:"trueNegatives"`

	Precision         float64 `json:"precisionScore"`
	Recall            float64 `json:"recallScore"`
	F1                float64 `json:"f1Score"`
	Accuracy          float64 `json:"accuracy"`
	FalsePositiveRate float64 `json:"falsePositiveRate"`
}

// CalibrationPoint is one gold_threshold_calibration row: the confusion
// counts and metrics for an archetype with its flag re-derived at a
// candidate threshold. Stateless and recomputed fully every run.
type CalibrationPoint struct {
	Archetype      Archetype `json:"archetype"`
	ThresholdValue float64   `json:"thresholdValue"`
	ThresholdUnit  string    `json:"thresholdUnit"`

	TruePositives  int64 `json:"truePositives"`
	FalsePositives int64 `json:"falsePositives"`
	FalseNegatives int64 `json:"falseNegatives"`

	Precision float64 `json:"precisionScore"`
	Recall    float64 `json:"recallScore"`
	F1        float64 `json:"f1Score"`
}

// Threshold units reported in the calibration table.
const (
	UnitMPH   = "mph"
	UnitCount = "txn_count"
	UnitSigma = "sigma"
)
