package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epicdeals/instant-offer/internal/model"
)

var (
	valueName      string
	valueCategory  string
	valueBrand     string
	valueModel     string
	valueCondition string
	valueDamage    []string
	valueYear      string
	valueEstimate  float64
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Run a one-shot valuation from flags",
	Long:  "Prices a fully described item without a conversation: courier gate, market research, repair assessment, and the offer calculation, printed as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if valueName == "" && valueModel == "" {
			return eris.New("either --name or --model is required")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p := model.ProductRecord{
			Name:          valueName,
			Category:      valueCategory,
			Brand:         valueBrand,
			Model:         valueModel,
			Condition:     valueCondition,
			DamageDetails: valueDamage,
		}
		if valueYear != "" {
			p.Specifications = map[string]string{"year": valueYear}
		}

		token := uuid.NewString()
		var result *model.OfferResult
		if valueEstimate > 0 {
			result, err = env.Offers.CalculateFromUserEstimate(cmd.Context(), token, p, valueEstimate)
		} else {
			result, err = env.Offers.Calculate(cmd.Context(), token, p)
		}
		if err != nil {
			return err
		}

		zap.L().Info("valuation complete",
			zap.String("product", p.DisplayName()),
			zap.String("recommendation", string(result.Recommendation)),
			zap.Float64("sell_now", result.SellNowAmount),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	valueCmd.Flags().StringVar(&valueName, "name", "", "product name, e.g. \"iPhone 13\"")
	valueCmd.Flags().StringVar(&valueCategory, "category", "", "product category, e.g. smartphone")
	valueCmd.Flags().StringVar(&valueBrand, "brand", "", "brand")
	valueCmd.Flags().StringVar(&valueModel, "model", "", "exact model")
	valueCmd.Flags().StringVar(&valueCondition, "condition", "", "condition tier: pristine, excellent, good, fair, poor")
	valueCmd.Flags().StringSliceVar(&valueDamage, "damage", nil, "reported defects, repeatable")
	valueCmd.Flags().StringVar(&valueYear, "year", "", "purchase or model year")
	valueCmd.Flags().Float64Var(&valueEstimate, "estimate", 0, "seller's own value estimate in ZAR (skips market research)")
	rootCmd.AddCommand(valueCmd)
}
