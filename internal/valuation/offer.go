package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
)

// Params are the business constants of the offer calculation. They come
// from configuration; see config.Valuation.
type Params struct {
	SellNowRate         float64 // fraction of adjusted value paid on immediate purchase
	ConsignmentRate     float64 // fraction of sale price paid out after consignment sale
	MinItemValue        float64 // ZAR, offers below route to review
	MaxItemValue        float64 // ZAR, items above route to review
	ConfidenceThreshold float64 // composite confidence needed for an instant offer
	RoundIncrement      float64 // payouts round to the nearest increment, e.g. R10
}

// roundTo rounds an amount to the nearest increment.
func roundTo(amount, increment float64) float64 {
	if increment <= 0 {
		return math.Round(amount)
	}
	return math.Round(amount/increment) * increment
}

// OverallConfidence blends price-research confidence, repair-estimate
// confidence, and a saturating function of corroborating listing count.
func OverallConfidence(priceConfidence, repairConfidence float64, listingCount int) float64 {
	listingFactor := math.Min(1.0, float64(listingCount)/5.0)
	return priceConfidence*0.5 + repairConfidence*0.3 + listingFactor*0.2
}

// Input carries everything the calculator needs for one valuation pass.
type Input struct {
	Product    model.ProductRecord
	Research   model.ResearchResult
	Assessment Assessment
	Repairs    *model.RepairEstimate
	AgeYears   float64
	SellNowOK  bool // business-model gate: electronics only
	Now        time.Time
}

// Compute turns market research and the condition assessment into the
// final offer. Both payout variants are always computed together: they
// are two business relationships over the same adjusted value.
func Compute(params Params, in Input) model.OfferResult {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	research := in.Research
	repairConfidence := 1.0
	if in.Repairs != nil {
		repairConfidence = in.Repairs.Confidence
	}

	result := model.OfferResult{
		ID:                  uuid.NewString(),
		MarketValue:         research.MarketValue,
		ConditionMultiplier: in.Assessment.ConditionMultiplier,
		RepairDeduction:     in.Assessment.RepairDeduction,
		AdjustedValue:       in.Assessment.AdjustedValue,
		Research:            &research,
		Repairs:             in.Repairs,
		SellNowAvailable:    in.SellNowOK,
		CreatedAt:           now,
	}

	result.SellNowAmount = roundTo(result.AdjustedValue*params.SellNowRate, params.RoundIncrement)
	result.ConsignmentPayout = roundTo(result.AdjustedValue*params.ConsignmentRate, params.RoundIncrement)
	result.Confidence = OverallConfidence(research.Confidence, repairConfidence, len(research.Observations))

	ber, berReason := IsBeyondEconomicRepair(
		in.Assessment.RepairDeduction, research.MarketValue, in.Assessment.Severity, in.AgeYears)
	if ber {
		result.BeyondEconomicRepair = true
		result.SellNowAvailable = false
		result.Recommendation = model.RecommendConsignmentOnly
		result.Reason = berReason
		zap.L().Info("valuation: beyond economic repair, consignment only",
			zap.String("product", in.Product.DisplayName()),
			zap.String("reason", berReason),
		)
		return result
	}

	// Value gates override confidence in both directions.
	if result.SellNowAmount < params.MinItemValue {
		result.Recommendation = model.RecommendEmailReview
		result.Reason = fmt.Sprintf("offer R%.0f below minimum threshold R%.0f",
			result.SellNowAmount, params.MinItemValue)
		return result
	}
	if result.SellNowAmount > params.MaxItemValue*params.SellNowRate {
		result.Recommendation = model.RecommendEmailReview
		result.Reason = fmt.Sprintf("offer R%.0f above maximum threshold", result.SellNowAmount)
		return result
	}

	if result.Confidence >= params.ConfidenceThreshold {
		result.Recommendation = model.RecommendInstantOffer
		result.Reason = "high confidence in pricing and repair estimates"
	} else {
		result.Recommendation = model.RecommendEmailReview
		result.Reason = reviewReason(research, in.Repairs, result.Confidence)
	}

	zap.L().Info("valuation: offer computed",
		zap.String("product", in.Product.DisplayName()),
		zap.Float64("market_value", result.MarketValue),
		zap.Float64("adjusted_value", result.AdjustedValue),
		zap.Float64("sell_now", result.SellNowAmount),
		zap.Float64("consignment", result.ConsignmentPayout),
		zap.Float64("confidence", result.Confidence),
		zap.String("recommendation", string(result.Recommendation)),
	)
	return result
}

// reviewReason explains why an offer needs human eyes. Reasons are
// returned to the caller, never silently discarded.
func reviewReason(research model.ResearchResult, repairs *model.RepairEstimate, confidence float64) string {
	var reasons []string
	if len(research.Observations) < 3 {
		reasons = append(reasons, "few comparable listings found")
	}
	if research.Confidence < 0.6 {
		reasons = append(reasons, "inconsistent pricing data")
	}
	if repairs != nil && repairs.Total > 0 && repairs.Confidence < 0.7 {
		reasons = append(reasons, "uncertain repair cost estimates")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("confidence score %.0f%% below threshold", confidence*100))
	}
	return strings.Join(reasons, "; ")
}

// ComputeFromUserEstimate prices an item off a seller-supplied estimate
// when the pipeline found no market data. Low confidence, always
// reviewed by a human before payment.
func ComputeFromUserEstimate(params Params, product model.ProductRecord, estimate float64, repairs *model.RepairEstimate, sellNowOK bool) model.OfferResult {
	repairTotal := 0.0
	if repairs != nil {
		repairTotal = repairs.Total
	}
	adjusted := math.Max(0, estimate-repairTotal)

	result := model.OfferResult{
		ID:                  uuid.NewString(),
		MarketValue:         estimate,
		RepairDeduction:     repairTotal,
		AdjustedValue:       adjusted,
		SellNowAmount:       roundTo(adjusted*params.SellNowRate, params.RoundIncrement),
		ConsignmentPayout:   roundTo(adjusted*params.ConsignmentRate, params.RoundIncrement),
		Confidence:          0.3,
		Recommendation:      model.RecommendEmailReview,
		Reason:              "offer based on seller estimate, manual assessment needed",
		SellNowAvailable:    sellNowOK,
		Repairs:             repairs,
		BasedOnUserEstimate: true,
		CreatedAt:           time.Now(),
	}
	return result
}
