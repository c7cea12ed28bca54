package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jafarshop/storefront/internal/apiclient"
	"github.com/jafarshop/storefront/internal/config"
	"github.com/jafarshop/storefront/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/find-product/main.go <name>")
		fmt.Println("Example: go run cmd/find-product/main.go \"Desk Lamp\"")
		os.Exit(1)
	}

	target := os.Args[1]

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	client, err := apiclient.NewClient(cfg.API, nil, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create API client: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Searching for product: %s\n\n", target)

	// Walk the catalog a page at a time
	cursor := ""
	for {
		page, err := client.ListProducts(context.Background(), apiclient.ListProductsParams{
			Cursor: cursor,
			Limit:  50,
			Search: target,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to query products: %v\n", err)
			os.Exit(1)
		}

		for _, p := range page.Items {
			if !strings.EqualFold(p.Name, target) {
				continue
			}
			fmt.Printf("Found product!\n\n")
			fmt.Printf("Name: %s\n", p.Name)
			fmt.Printf("Category: %s\n", p.Category)
			fmt.Printf("Price: %s\n", p.Price.StringFixed(2))
			fmt.Printf("In stock: %d\n", p.CountInStock)
			fmt.Printf("\nProduct ID: %s\n", p.ID)
			fmt.Printf("\nTo add it to your cart, run:\n")
			fmt.Printf("go run cmd/storefront/main.go cart add %s\n", p.ID)
			return
		}

		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	fmt.Printf("No product named %q\n", target)
	os.Exit(1)
}
