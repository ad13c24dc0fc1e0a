package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/models"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
	"bitbucket.org/mmagrifoods/millstock_backend/workflow"
)

// Replays a business's audit trail and compares it against the cached
// balances. Exit 0 when clean, 2 when diverged.
func main() {
	businessID := flag.String("business-id", "", "Required: business id")
	flag.Parse()

	if strings.TrimSpace(*businessID) == "" {
		fmt.Fprintln(os.Stderr, "--business-id is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := utils.SetBusinessIdInContext(context.Background(), strings.TrimSpace(*businessID))
	divergences, err := workflow.VerifyLedger(ctx)
	if err != nil && !errors.Is(err, models.ErrLedgerDiverged) {
		fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
		os.Exit(1)
	}

	if len(divergences) == 0 {
		fmt.Println("ledger is clean: cached balances match audit trail replay")
		return
	}

	fmt.Printf("LEDGER DIVERGED: %d balances disagree\n", len(divergences))
	for _, d := range divergences {
		fmt.Printf("  item=%d partition=%s posted(qty=%s value=%s) replayed(qty=%s value=%s)\n",
			d.ItemId, d.Partition,
			d.Posted.Qty, d.Posted.Value,
			d.Replayed.Qty, d.Replayed.Value)
	}
	os.Exit(2)
}
