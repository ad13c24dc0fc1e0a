package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"bitbucket.org/mmagrifoods/millstock_backend/workflow"
)

// Rebuilds the stock summary cache for one business from its audit trail.
// Safe to run while the service is up: it takes the same posting locks.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), strings.TrimSpace(*businessID))
	snapshot, err := workflow.RebuildStockSummaries(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rebuild failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("rebuilt %d balances at ledger version %d\n", len(snapshot.Balances), snapshot.Version)
	for _, b := range snapshot.Balances {
		fmt.Printf("  item=%d partition=%s qty=%s value=%s\n", b.ItemId, b.Partition, b.Qty, b.Value)
	}
}
