// Package main provides the compare command-line tool that runs one price
// comparison and prints the ranked offers as a table.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pricelens/gateway/config"
	"github.com/pricelens/gateway/internal/domain"
	"github.com/pricelens/gateway/internal/infrastructure/dealsapi"
	"github.com/pricelens/gateway/internal/infrastructure/retailers"
	"github.com/pricelens/gateway/internal/logger"
	"github.com/pricelens/gateway/internal/usecase"
)

func main() {
	product := flag.String("product", "", "Product to compare (required)")
	searchID := flag.Int64("search-id", 0, "Search id from a previous image upload")
	pincode := flag.String("pincode", "", "Delivery pincode")
	sortKey := flag.String("sort", "price", "Sort by: price, rating, discount or delivery")
	backendURL := flag.String("backend", "", "Backend base URL (overrides config)")
	file := flag.String("file", "", "Read a saved backend deals response instead of calling the backend")
	retailerFile := flag.String("retailers", "", "Retailer table YAML (overrides config)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	asJSON := flag.Bool("json", false, "Print the comparison as JSON")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Parse()

	if *product == "" {
		fmt.Fprintln(os.Stderr, "usage: compare -product <name> [-sort price|rating|discount|delivery] [-file deals.json]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	key, err := domain.ParseSortKey(*sortKey)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	zapLog, err := logger.New(level, "console")
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer zapLog.Sync()

	var client domain.DealsClient
	tableFile := *retailerFile
	if *file != "" {
		client = fileDeals(*file)
	} else {
		cfg, err := config.Load()
		if err != nil {
			log.Fatalf("❌ Failed to load config: %v", err)
		}
		base := cfg.Backend.BaseURL
		if *backendURL != "" {
			base = *backendURL
		}
		if tableFile == "" {
			tableFile = cfg.Retailers.File
		}
		client = dealsapi.NewClient(base, dealsapi.ClientConfig{
			Timeout:       cfg.Backend.Timeout,
			RatePerSecond: cfg.Backend.RatePerSecond,
			Burst:         cfg.Backend.Burst,
		}, dealsapi.StaticToken(cfg.Backend.Token), zapLog)
	}

	registry, err := retailers.Load(tableFile)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	svc := usecase.NewComparisonService(nil, client, usecase.NewNormalizer(registry), zapLog, usecase.ComparisonServiceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cmp, err := svc.Compare(ctx, domain.DealQuery{Product: *product, SearchID: *searchID, Pincode: *pincode}, key)
	if err != nil {
		log.Fatalf("❌ Comparison failed: %v", err)
	}

	if *asJSON {
		err = writeJSON(os.Stdout, cmp)
	} else {
		err = writeTable(os.Stdout, cmp)
	}
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
}

// fileDeals serves a saved deals response from disk
type fileDeals string

func (f fileDeals) FetchDeals(ctx context.Context, query string, searchID int64, pincode string) (domain.RetailerResponse, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read deals file: %w", err)
	}
	return dealsapi.DecodeDeals(data)
}

func (f fileDeals) UploadImage(ctx context.Context, filename string, image io.Reader) (*domain.ImageIdentification, error) {
	return nil, errors.New("image upload needs a backend")
}

func (f fileDeals) SaveManualSearch(ctx context.Context, query string) error {
	return nil
}
