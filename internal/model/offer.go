package model

import "time"

// SourceKind distinguishes how a price observation was obtained.
type SourceKind string

const (
	SourceExpertResearch SourceKind = "expert_research"
	SourceListingScrape  SourceKind = "listing_scrape"
)

// PriceObservation is a single price seen at a source during one
// valuation pass. Amounts are in ZAR.
type PriceObservation struct {
	Amount              float64    `json:"amount"`
	Source              string     `json:"source"`
	Kind                SourceKind `json:"kind"`
	Title               string     `json:"title,omitempty"`
	IsNewRetailEstimate bool       `json:"is_new_retail_estimate,omitempty"`
}

// Recommendation routes an offer result.
type Recommendation string

const (
	RecommendInstantOffer    Recommendation = "instant_offer"
	RecommendEmailReview     Recommendation = "email_review"
	RecommendUserEstimate    Recommendation = "user_estimate_required"
	RecommendNonCourierItem  Recommendation = "non_courier_item"
	RecommendConsignmentOnly Recommendation = "consignment_only"
)

// ResearchResult is the output of the price aggregator.
type ResearchResult struct {
	Observations      []PriceObservation `json:"observations"`
	MarketValue       float64            `json:"market_value"`
	Confidence        float64            `json:"confidence"`
	SourcesChecked    []string           `json:"sources_checked"`
	NeedsUserEstimate bool               `json:"needs_user_estimate"`
	UsedDepreciation  bool               `json:"used_depreciation,omitempty"`
}

// RepairItem is one researched defect cost.
type RepairItem struct {
	Defect     string  `json:"defect"`
	Cost       float64 `json:"cost"`
	Source     string  `json:"source"`
	Details    string  `json:"details,omitempty"`
	Researched bool    `json:"researched"`
	Confidence float64 `json:"confidence"`
}

// RepairEstimate aggregates researched repair costs for a product.
type RepairEstimate struct {
	Items      []RepairItem `json:"items"`
	Total      float64      `json:"total"`
	Confidence float64      `json:"confidence"`
}

// OfferResult is the immutable outcome of one valuation pass.
type OfferResult struct {
	ID                   string          `json:"id"`
	MarketValue          float64         `json:"market_value"`
	ConditionMultiplier  float64         `json:"condition_multiplier"`
	RepairDeduction      float64         `json:"repair_deduction"`
	AdjustedValue        float64         `json:"adjusted_value"`
	SellNowAmount        float64         `json:"sell_now_amount"`
	ConsignmentPayout    float64         `json:"consignment_payout"`
	Confidence           float64         `json:"confidence"`
	Recommendation       Recommendation  `json:"recommendation"`
	Reason               string          `json:"reason"`
	SellNowAvailable     bool            `json:"sell_now_available"`
	BeyondEconomicRepair bool            `json:"beyond_economic_repair,omitempty"`
	Research             *ResearchResult `json:"research,omitempty"`
	Repairs              *RepairEstimate `json:"repairs,omitempty"`
	BasedOnUserEstimate  bool            `json:"based_on_user_estimate,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// ReviewStatus tracks a manual research queue entry.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewComplete ReviewStatus = "complete"
)

// ReviewItem is a queued manual-review request with an SLA deadline.
type ReviewItem struct {
	ID          string        `json:"id"`
	Product     ProductRecord `json:"product"`
	Contact     Contact       `json:"contact"`
	Preliminary *OfferResult  `json:"preliminary,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	FinalOffer  float64       `json:"final_offer,omitempty"`
	Status      ReviewStatus  `json:"status"`
	SLADeadline time.Time     `json:"sla_deadline"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Contact holds validated customer contact details.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
