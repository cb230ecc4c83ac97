// catalog-sync runs catalog maintenance against the server's database without
// the HTTP server: bulk imports from a Scryfall query, price refreshes, value
// snapshots and offline sorting runs.
//
// Usage: catalog-sync [-config=<path>] [-db=<path>] <actions>
//
// Actions run in this order when combined:
//  1. -import=<query> imports every card matching a Scryfall search
//  2. -refresh-prices refreshes stale prices of owned cards (-force for all)
//  3. -snapshot records today's collection value snapshot
//  4. -sort=<criterion> previews a bin assignment, saved with -apply
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/codyseavey/tcg-sorter/backend/internal/config"
	"github.com/codyseavey/tcg-sorter/backend/internal/database"
	"github.com/codyseavey/tcg-sorter/backend/internal/services"
	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to TOML config file")
	dbPath := flag.String("db", "", "Path to SQLite database (overrides config)")
	importQuery := flag.String("import", "", "Scryfall search query to import")
	pages := flag.Int("pages", 1, "Maximum search result pages to import")
	refresh := flag.Bool("refresh-prices", false, "Refresh prices of owned cards")
	force := flag.Bool("force", false, "Refresh prices even when they are fresh")
	snapshot := flag.Bool("snapshot", false, "Record today's collection value snapshot")
	criterion := flag.String("sort", "", "Sorting criterion to preview ("+criteriaList()+")")
	bins := flag.Int("bins", 0, "Number of bins (defaults to config)")
	letters := flag.Int("letters", 1, "Prefix letters for alphabetical sorting")
	collectionID := flag.Uint("collection", 0, "Limit sorting to one collection")
	configName := flag.String("name", "", "Name of the sorting config to apply into")
	apply := flag.Bool("apply", false, "Save the sorting assignment instead of only previewing it")
	flag.Parse()

	if *importQuery == "" && !*refresh && !*snapshot && *criterion == "" {
		fmt.Println("Usage: catalog-sync [-config=<path>] [-db=<path>] <actions>")
		fmt.Println("")
		fmt.Println("Actions:")
		fmt.Println("  -import=<query>     Import cards matching a Scryfall search (-pages to limit)")
		fmt.Println("  -refresh-prices     Refresh stale prices of owned cards (-force for all)")
		fmt.Println("  -snapshot           Record today's collection value snapshot")
		fmt.Println("  -sort=<criterion>   Preview a bin assignment (-bins, -letters, -collection)")
		fmt.Println("                      and save it with -apply [-name=<config>]")
		fmt.Println("")
		fmt.Println("Examples:")
		fmt.Println("  catalog-sync -import='set:dmu' -pages=5")
		fmt.Println("  catalog-sync -sort=color -bins=7 -apply")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	db, err := database.Open(cfg.Database.Path, cfg.Database.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scryfall := services.NewScryfallService(services.ScryfallOptions{
		BaseURL:   cfg.Scryfall.BaseURL,
		RateLimit: cfg.Scryfall.RateLimit,
		CacheSize: cfg.Scryfall.CacheSize,
		Timeout:   cfg.ScryfallTimeout(),
	})
	tracker := services.NewPriceTracker(db, scryfall, cfg.PriceStaleAfter(), cfg.Prices.Concurrency)

	if *importQuery != "" {
		catalog := services.NewCatalogService(db, scryfall, tracker)
		imported, err := catalog.ImportSearch(ctx, *importQuery, *pages)
		if err != nil {
			log.Fatalf("Import failed after %d cards: %v", imported, err)
		}
		log.Printf("Imported %d new cards for %q", imported, *importQuery)
	}

	if *refresh {
		result, err := tracker.RefreshAll(ctx, *force)
		if err != nil {
			log.Fatalf("Price refresh failed: %v", err)
		}
		log.Printf("Prices: %d checked, %d updated, %d skipped, %d failed",
			result.Checked, result.Updated, result.Skipped, result.Failed)
	}

	if *snapshot {
		snap, err := services.NewSnapshotService(db, tracker).TakeSnapshot(ctx)
		if err != nil {
			log.Fatalf("Snapshot failed: %v", err)
		}
		log.Printf("Snapshot: %d cards worth $%.2f", snap.TotalCards, snap.TotalValue)
	}

	if *criterion != "" {
		c, err := sorting.ParseCriterion(*criterion)
		if err != nil {
			log.Fatalf("%v", err)
		}
		req := sorting.Request{Criterion: c, Letters: *letters, BinCount: *bins}
		if req.BinCount == 0 {
			req.BinCount = cfg.Sorting.DefaultBinCount
		}
		if *collectionID != 0 {
			id := *collectionID
			req.CollectionID = &id
		}
		if err := runSort(ctx, services.NewSortingStore(db), req, *configName, *apply); err != nil {
			log.Fatalf("Sorting failed: %v", err)
		}
	}
}

func runSort(ctx context.Context, store sorting.Store, req sorting.Request, name string, apply bool) error {
	session := sorting.NewSession(store, nil)
	preview, err := session.Preview(ctx, req)
	if err != nil {
		return err
	}
	printResult(preview)
	if !apply {
		return nil
	}

	result, err := session.Apply(ctx, sorting.ApplyRequest{
		Request:     req,
		ConfigName:  name,
		Fingerprint: preview.Fingerprint,
	})
	if err != nil {
		return err
	}
	log.Printf("Saved %d assignments into config %q (id %d)", result.SortedCards, result.ConfigName, result.ConfigID)
	return nil
}

func printResult(res *sorting.Result) {
	fmt.Printf("%s into %d bins: %d cards, %d sorted, %d unknown\n",
		res.Criterion.DisplayName(), res.BinCount, res.TotalCards, res.SortedCards, len(res.Unknown))
	for _, bin := range res.Bins {
		fmt.Printf("  bin %2d  %-16s %5d\n", bin.Index+1, bin.Label, bin.Count)
	}
}

func criteriaList() string {
	names := make([]string, 0, len(sorting.AllCriteria()))
	for _, c := range sorting.AllCriteria() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
