package domain

// Attribution is one ranked feature contribution.
type Attribution struct {
	Feature             string  `json:"feature"`
	Attribution         float64 `json:"attribution"`
	RawValue            float64 `json:"rawValue"`
	NormalValue         float64 `json:"normalValue"`
	DeviationFromNormal float64 `json:"deviationFromNormal"`
}

// Explanation describes why a transaction was flagged.
// Only produced for review and block decisions.
type Explanation struct {
	Attributions []Attribution `json:"attributions"`
	Summary      string        `json:"summary"`
	Method       string        `json:"method"`
	BaseValue    float64       `json:"baseValue"`
	Approximate  bool          `json:"approximate"`
}
