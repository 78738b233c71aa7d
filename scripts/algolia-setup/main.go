// algolia-setup applies the settings of the lab-analysis search index.
//
// Usage:
//
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... go run ./scripts/algolia-setup
//	ALGOLIA_APP_ID=... ALGOLIA_ADMIN_KEY=... ALGOLIA_INDEX_NAME=lab_analyses_staging go run ./scripts/algolia-setup
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/algolia/algoliasearch-client-go/v4/algolia/search"
)

func int32Ptr(v int32) *int32 { return &v }

func main() {
	appID := os.Getenv("ALGOLIA_APP_ID")
	adminKey := os.Getenv("ALGOLIA_ADMIN_KEY")
	indexName := os.Getenv("ALGOLIA_INDEX_NAME")

	if appID == "" || adminKey == "" {
		log.Fatal("ALGOLIA_APP_ID and ALGOLIA_ADMIN_KEY are required")
	}
	if indexName == "" {
		indexName = "lab_analyses"
	}

	client, err := search.NewClient(appID, adminKey)
	if err != nil {
		log.Fatalf("Failed to create Algolia client: %v", err)
	}

	log.Printf("Configuring Algolia index %q (app: %s)...", indexName, appID)

	// Attribute names must match the projection in internal/search.
	settings := &search.IndexSettings{
		SearchableAttributes: []string{
			"Anomalies",
			"TypeBilan",
			"Resume",
		},

		AttributesForFaceting: []string{
			"filterOnly(DemandeId)",
			"DangerLevel",
			"searchable(TypeBilan)",
		},

		NumericAttributesForFiltering: []string{
			"DangerScore",
			"CreatedAtUnix",
		},

		// Most recent first once text relevance ties.
		CustomRanking: []string{
			"desc(CreatedAtUnix)",
		},

		AttributesToHighlight: []string{
			"Anomalies",
			"Resume",
		},

		HitsPerPage:       int32Ptr(25),
		MaxValuesPerFacet: int32Ptr(100),

		// Analyte abbreviations are short; keep typo tolerance off for them.
		MinWordSizefor1Typo:  int32Ptr(5),
		MinWordSizefor2Typos: int32Ptr(9),
	}

	resp, err := client.SetSettings(client.NewApiSetSettingsRequest(indexName, settings))
	if err != nil {
		log.Fatalf("Failed to set index settings: %v", err)
	}

	log.Printf("Index settings applied (taskID: %d, updatedAt: %s)", resp.TaskID, resp.UpdatedAt)

	fmt.Println()
	fmt.Println("=== Algolia Index Configuration ===")
	fmt.Printf("Index:              %s\n", indexName)
	fmt.Printf("App ID:             %s\n", appID)
	fmt.Println()
	fmt.Println("Searchable attrs:   Anomalies, TypeBilan, Resume")
	fmt.Println("Facet filters:      DemandeId, DangerLevel, TypeBilan")
	fmt.Println("Numeric filters:    DangerScore, CreatedAtUnix")
	fmt.Println("Custom ranking:     desc(CreatedAtUnix)")
	fmt.Println()
	fmt.Println("Done. Settings apply asynchronously and are active within seconds.")
}
