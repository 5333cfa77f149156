package domain

// Feature names. The set is fixed; every FeatureVector carries all of them.
const (
	FeatureTxCount1m         = "tx_count_1m"
	FeatureTxCount5m         = "tx_count_5m"
	FeatureTxCount1h         = "tx_count_1h"
	FeatureDeviationMean     = "amount_deviation_from_mean"
	FeatureDeviationMedian   = "amount_deviation_from_median"
	FeatureAmountPercentile  = "amount_percentile"
	FeatureDeviceFrequency   = "device_frequency"
	FeatureMerchantFrequency = "merchant_frequency"
	FeatureGeoInconsistency  = "geo_time_inconsistency_score"
	FeatureDistanceKm        = "distance_from_last_tx_km"
	FeatureHoursSinceLast    = "hours_since_last_tx"
)

// FeatureNames lists all features in canonical order.
var FeatureNames = []string{
	FeatureTxCount1m,
	FeatureTxCount5m,
	FeatureTxCount1h,
	FeatureDeviationMean,
	FeatureDeviationMedian,
	FeatureAmountPercentile,
	FeatureDeviceFrequency,
	FeatureMerchantFrequency,
	FeatureGeoInconsistency,
	FeatureDistanceKm,
	FeatureHoursSinceLast,
}

// FeatureDefaults holds the documented fallback value of every feature.
var FeatureDefaults = map[string]float64{
	FeatureTxCount1m:         0,
	FeatureTxCount5m:         0,
	FeatureTxCount1h:         0,
	FeatureDeviationMean:     0,
	FeatureDeviationMedian:   0,
	FeatureAmountPercentile:  0.5,
	FeatureDeviceFrequency:   0,
	FeatureMerchantFrequency: 0,
	FeatureGeoInconsistency:  0,
	FeatureDistanceKm:        0,
	FeatureHoursSinceLast:    24,
}

// Null reasons recorded when a feature falls back to its default.
const (
	ReasonNotComputed         = "not_computed"
	ReasonHistoryTimeout      = "history_timeout"
	ReasonHistoryError        = "history_error"
	ReasonInsufficientHistory = "insufficient_history"
	ReasonNoLocation          = "no_location"
	ReasonNonFinite           = "non_finite"
	ReasonPanic               = "panic"
)

// Baseline sources.
const (
	BaselineSourceUser   = "user"
	BaselineSourceGlobal = "global"
)

// FeatureValue is one populated or null feature.
// A null feature carries its default in Value.
type FeatureValue struct {
	Value  float64 `json:"value"`
	Null   bool    `json:"null,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// FeatureVector is the fixed-shape input to the scorers.
type FeatureVector struct {
	TxID   string                  `json:"txId"`
	Values map[string]FeatureValue `json:"values"`

	LowConfidence          bool   `json:"lowConfidence"`
	BaselineSource         string `json:"baselineSource"`
	GeoInsufficientHistory bool   `json:"geoInsufficientHistory"`
}

// NewFeatureVector returns a vector with every feature declared null.
func NewFeatureVector(txID string) *FeatureVector {
	fv := &FeatureVector{
		TxID:   txID,
		Values: make(map[string]FeatureValue, len(FeatureNames)),
	}
	for _, name := range FeatureNames {
		fv.Values[name] = FeatureValue{Value: FeatureDefaults[name], Null: true, Reason: ReasonNotComputed}
	}
	return fv
}

// Get returns the feature value, or its default if unknown.
func (fv *FeatureVector) Get(name string) float64 {
	if v, ok := fv.Values[name]; ok {
		return v.Value
	}
	return FeatureDefaults[name]
}

// Set populates a feature.
func (fv *FeatureVector) Set(name string, value float64) {
	fv.Values[name] = FeatureValue{Value: value}
}

// SetNull defaults a feature and records why.
func (fv *FeatureVector) SetNull(name, reason string) {
	fv.Values[name] = FeatureValue{Value: FeatureDefaults[name], Null: true, Reason: reason}
}

// IsNull reports whether a feature fell back to its default.
func (fv *FeatureVector) IsNull(name string) bool {
	return fv.Values[name].Null
}

// Clone returns a deep copy.
func (fv *FeatureVector) Clone() *FeatureVector {
	out := *fv
	out.Values = make(map[string]FeatureValue, len(fv.Values))
	for k, v := range fv.Values {
		out.Values[k] = v
	}
	return &out
}

// AsMap returns plain feature values keyed by name.
func (fv *FeatureVector) AsMap() map[string]float64 {
	m := make(map[string]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		m[name] = fv.Get(name)
	}
	return m
}
