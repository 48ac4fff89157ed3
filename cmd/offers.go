package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/epicdeals/instant-offer/internal/model"
	"github.com/epicdeals/instant-offer/internal/store"
)

var (
	offersRecommendation string
	offersLimit          int
	reviewsOverdue       bool
	reviewsDone          bool
	reviewNotes          string
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "List stored offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		offers, err := env.Store.ListOffers(cmd.Context(), store.OfferFilter{
			Recommendation: model.Recommendation(offersRecommendation),
			Limit:          offersLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tRECOMMENDATION\tMARKET\tSELL NOW\tCONFIDENCE\tCREATED")
		for _, o := range offers {
			fmt.Fprintf(w, "%s\t%s\tR%.0f\tR%.0f\t%.2f\t%s\n",
				o.ID, o.Recommendation, o.MarketValue, o.SellNowAmount,
				o.Confidence, o.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "List the manual review queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		status := model.ReviewPending
		if reviewsDone {
			status = model.ReviewComplete
		}
		items, err := env.Store.ListReviews(cmd.Context(), store.ReviewFilter{
			Status:      status,
			OverdueOnly: reviewsOverdue,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPRODUCT\tCONTACT\tSTATUS\tSLA DEADLINE")
		now := time.Now()
		for _, item := range items {
			deadline := item.SLADeadline.Format("2006-01-02 15:04")
			if item.Status == model.ReviewPending && now.After(item.SLADeadline) {
				deadline += " (overdue)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				item.ID, item.Product.DisplayName(), item.Contact.Email,
				item.Status, deadline)
		}
		return w.Flush()
	},
}

var reviewCompleteCmd = &cobra.Command{
	Use:   "complete <review-id> <final-offer>",
	Short: "Complete a review with the final offer amount",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		finalOffer, err := strconv.ParseFloat(args[1], 64)
		if err != nil || finalOffer < 0 {
			return eris.Errorf("invalid final offer amount %q", args[1])
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.CompleteReview(cmd.Context(), args[0], finalOffer, reviewNotes); err != nil {
			return err
		}
		fmt.Printf("review %s completed at R%.0f\n", args[0], finalOffer)
		return nil
	},
}

func init() {
	offersCmd.Flags().StringVar(&offersRecommendation, "recommendation", "", "filter by recommendation: instant_offer, email_review, user_estimate_required, non_courier_item")
	offersCmd.Flags().IntVar(&offersLimit, "limit", 50, "maximum offers to list")
	reviewsCmd.Flags().BoolVar(&reviewsOverdue, "overdue", false, "only reviews past their SLA deadline")
	reviewsCmd.Flags().BoolVar(&reviewsDone, "done", false, "list completed reviews instead of pending")
	reviewsCmd.AddCommand(reviewCompleteCmd)
	rootCmd.AddCommand(offersCmd)
	rootCmd.AddCommand(reviewsCmd)
}
