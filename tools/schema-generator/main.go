// Command schema-generator writes the JSON Schemas of pharmastock.yml and of
// the dashboard hub payloads to schema/definitions.
package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/pharmastock/config"
	"github.com/grovetools/pharmastock/pkg/hub"
)

func main() {
	outputDir := "schema/definitions"
	if err := os.MkdirAll(filepath.Join(outputDir, "hub"), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}

	configSchema, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating config schema: %v", err)
	}
	write(filepath.Join(outputDir, "config.schema.json"), configSchema)

	payloads, err := hub.PayloadSchemas()
	if err != nil {
		log.Fatalf("Error generating hub schemas: %v", err)
	}
	for target, doc := range payloads {
		write(filepath.Join(outputDir, "hub", target+".schema.json"), doc)
	}
}

func write(path string, data []byte) {
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("Error writing %s: %v", path, err)
	}
	log.Printf("Wrote %s", path)
}
