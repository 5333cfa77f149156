package explain

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// FallbackSummary is used when no feature pushed the score up.
const FallbackSummary = "Flagged due to combined risk factors"

// Summarize verbalizes the strongest positive attributions.
func Summarize(attrs []domain.Attribution) string {
	var reasons []string
	for _, a := range attrs {
		if a.Attribution <= 0 {
			continue
		}
		reasons = append(reasons, phrase(a.Feature, a.RawValue))
		if len(reasons) == summaryReasons {
			break
		}
	}
	if len(reasons) == 0 {
		return FallbackSummary
	}
	return "Flagged due to: " + strings.Join(reasons, ", ")
}

func phrase(feature string, v float64) string {
	switch feature {
	case domain.FeatureTxCount1m:
		return fmt.Sprintf("high transaction velocity (%d transactions in 1 minute)", int(v))
	case domain.FeatureTxCount5m:
		return fmt.Sprintf("unusual transaction frequency (%d transactions in 5 minutes)", int(v))
	case domain.FeatureTxCount1h:
		return fmt.Sprintf("elevated transaction rate (%d transactions in 1 hour)", int(v))
	case domain.FeatureDeviationMean:
		return fmt.Sprintf("unusual amount (%.1f standard deviations from user average)", v)
	case domain.FeatureDeviationMedian:
		return fmt.Sprintf("atypical transaction amount ($%.2f from user median)", v)
	case domain.FeatureAmountPercentile:
		return fmt.Sprintf("extreme amount (%.0fth percentile for user)", v*100)
	case domain.FeatureDeviceFrequency:
		if v == 0 {
			return "new device"
		}
		return fmt.Sprintf("device used %d times recently", int(v))
	case domain.FeatureMerchantFrequency:
		if v == 0 {
			return "new merchant"
		}
		return fmt.Sprintf("merchant used %d times recently", int(v))
	case domain.FeatureGeoInconsistency:
		return fmt.Sprintf("impossible travel detected (score: %.2f)", v)
	case domain.FeatureDistanceKm:
		return fmt.Sprintf("large distance from last transaction (%.0f km)", v)
	case domain.FeatureHoursSinceLast:
		return fmt.Sprintf("very short time since last transaction (%.0f seconds)", v*3600)
	default:
		return feature
	}
}
