package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maltedev/catalog-scraper/internal/models"
)

var (
	scrapeKind      string
	scrapeStoreID   string
	scrapeProductID string
	scrapePageID    string
	scrapeAffiliate string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <url>",
	Short: "Scrape one product page",
	Long:  "Scrapes a single product page and prints the resulting record as JSON. The record hash is compared with the state file to report whether the product changed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := models.ParseKind(scrapeKind)
		if err != nil {
			return err
		}

		e, err := newEnv(kind, nil)
		if err != nil {
			return err
		}
		defer e.close()

		record, changed, err := e.manager.Scrape(ctx, models.ScrapeRequest{
			URL:          args[0],
			AffiliateURL: scrapeAffiliate,
			StoreID:      scrapeStoreID,
			ProductID:    scrapeProductID,
			PageID:       scrapePageID,
			Kind:         kind,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(record); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "changed=%t hash=%s requests=%d\n", changed, record.Hash.String(), record.Metrics.NumOfHTTPRequests)
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeKind, "kind", "full", "scrape kind: availability, full or mpi")
	scrapeCmd.Flags().StringVar(&scrapeStoreID, "store-id", "", "store id attached to the record")
	scrapeCmd.Flags().StringVar(&scrapeProductID, "product-id", "", "product id attached to the record")
	scrapeCmd.Flags().StringVar(&scrapePageID, "page-id", "", "page id attached to the record")
	scrapeCmd.Flags().StringVar(&scrapeAffiliate, "affiliate-url", "", "affiliate URL carried into the record")
	rootCmd.AddCommand(scrapeCmd)
}
