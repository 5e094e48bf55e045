// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// generate_metric_docs generates a markdown reference from a metric registry YAML.
//
// Usage:
//
//	go run scripts/generate_metric_docs.go > docs/metric_reference.md
//	go run scripts/generate_metric_docs.go path/to/registry.yaml > docs/metric_reference.md
//
// The generated documentation includes:
//   - Full metric inventory grouped by category
//   - Measurement status and statistical-test eligibility
//   - The model pricing table
//   - Summary statistics
package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RegistryYAML is the root structure for YAML deserialization.
type RegistryYAML struct {
	Metrics map[string]MetricEntryYAML `yaml:"metrics"`
	Pricing PricingYAML                `yaml:"pricing"`
}

// MetricEntryYAML represents a single metric entry in the YAML file.
type MetricEntryYAML struct {
	Name                 string `yaml:"name"`
	Description          string `yaml:"description"`
	Unit                 string `yaml:"unit"`
	Category             string `yaml:"category"`
	IdealDirection       string `yaml:"ideal_direction"`
	DataSource           string `yaml:"data_source"`
	Aggregation          string `yaml:"aggregation"`
	DisplayFormat        string `yaml:"display_format"`
	StatisticalTest      bool   `yaml:"statistical_test"`
	StoppingRuleEligible bool   `yaml:"stopping_rule_eligible"`
	Status               string `yaml:"status,omitempty"`
	Reason               string `yaml:"reason,omitempty"`
}

// PricingYAML holds the model pricing table.
type PricingYAML struct {
	Models map[string]PricingEntryYAML `yaml:"models"`
}

// PricingEntryYAML is one model's prices, USD per one million tokens.
type PricingEntryYAML struct {
	InputPrice  float64 `yaml:"input_price"`
	CachedPrice float64 `yaml:"cached_price"`
	OutputPrice float64 `yaml:"output_price"`
}

// metricRow pairs a registry key with its entry for sorted iteration.
type metricRow struct {
	Key   string
	Entry MetricEntryYAML
}

func main() {
	registryPath := "services/engine/registry/metrics.yaml"
	if len(os.Args) > 1 {
		registryPath = os.Args[1]
	}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", registryPath, err)
		os.Exit(1)
	}

	var registry RegistryYAML
	if err := yaml.Unmarshal(data, &registry); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing YAML: %v\n", err)
		os.Exit(1)
	}

	categories := categorizeMetrics(registry.Metrics)
	generateMarkdown(registryPath, categories, registry)
}

// categorizeMetrics groups metrics by their category field, categories in
// alphabetical order and keys sorted within each.
func categorizeMetrics(metrics map[string]MetricEntryYAML) map[string][]metricRow {
	categories := make(map[string][]metricRow)
	for key, entry := range metrics {
		categories[entry.Category] = append(categories[entry.Category], metricRow{Key: key, Entry: entry})
	}
	for _, rows := range categories {
		sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	}
	return categories
}

func sortedCategoryNames(categories map[string][]metricRow) []string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(registryPath string, categories map[string][]metricRow, registry RegistryYAML) {
	fmt.Println("# Metric Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Println("This document is the reference for every metric the analysis engine can")
	fmt.Printf("aggregate and compare. The registry is defined in `%s`\n", registryPath)
	fmt.Println("and loaded at startup.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	tested := 0
	stopping := 0
	derived := 0
	unmeasured := 0
	for _, entry := range registry.Metrics {
		if entry.StatisticalTest {
			tested++
		}
		if entry.StoppingRuleEligible {
			stopping++
		}
		switch entry.Status {
		case "derived":
			derived++
		case "unmeasured":
			unmeasured++
		}
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Total Metrics | %d |\n", len(registry.Metrics))
	fmt.Printf("| Statistically Tested | %d |\n", tested)
	fmt.Printf("| Stopping-Rule Eligible | %d |\n", stopping)
	fmt.Printf("| Derived | %d |\n", derived)
	fmt.Printf("| Unmeasured | %d |\n", unmeasured)
	fmt.Printf("| Categories | %d |\n", len(categories))
	fmt.Printf("| Priced Models | %d |\n", len(registry.Pricing.Models))
	fmt.Println()

	names := sortedCategoryNames(categories)

	// Table of contents
	fmt.Println("## Table of Contents")
	fmt.Println()
	for i, name := range names {
		fmt.Printf("%d. [%s](#%s)\n", i+1, titleCase(name), strings.ToLower(name))
	}
	fmt.Printf("%d. [Pricing](#pricing)\n", len(names)+1)
	fmt.Println()

	// Quick reference table
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Key | Name | Category | Direction | Tested | Stopping | Status |")
	fmt.Println("|-----|------|----------|-----------|--------|----------|--------|")
	for _, name := range names {
		for _, row := range categories[name] {
			status := row.Entry.Status
			if status == "" {
				status = "measured"
			}
			fmt.Printf("| `%s` | %s | %s | %s | %s | %s | %s |\n",
				row.Key,
				row.Entry.Name,
				row.Entry.Category,
				row.Entry.IdealDirection,
				yesNo(row.Entry.StatisticalTest),
				yesNo(row.Entry.StoppingRuleEligible),
				status,
			)
		}
	}
	fmt.Println()

	// Detailed sections per category
	fmt.Println("---")
	fmt.Println()
	for _, name := range names {
		fmt.Printf("## %s\n", titleCase(name))
		fmt.Println()
		for _, row := range categories[name] {
			printMetricDetails(row)
		}
	}

	// Pricing table
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Pricing")
	fmt.Println()
	fmt.Println("Prices are USD per one million tokens. The cached price applies to input")
	fmt.Println("tokens served from the provider prompt cache; it is never above the")
	fmt.Println("uncached input price.")
	fmt.Println()
	fmt.Println("| Model | Input | Cached Input | Output |")
	fmt.Println("|-------|-------|--------------|--------|")

	models := make([]string, 0, len(registry.Pricing.Models))
	for model := range registry.Pricing.Models {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		entry := registry.Pricing.Models[model]
		fmt.Printf("| `%s` | $%.3f | $%.3f | $%.3f |\n",
			model, entry.InputPrice, entry.CachedPrice, entry.OutputPrice)
	}
	fmt.Println()

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Printf("*This document is auto-generated from `%s`.*\n", registryPath)
	fmt.Println()
	fmt.Println("*To regenerate: `go run scripts/generate_metric_docs.go > docs/metric_reference.md`*")
}

// printMetricDetails prints detailed information for a single metric.
func printMetricDetails(row metricRow) {
	entry := row.Entry
	fmt.Printf("### `%s`\n", row.Key)
	fmt.Println()
	fmt.Println(entry.Description)
	fmt.Println()

	fmt.Println("| Property | Value |")
	fmt.Println("|----------|-------|")
	fmt.Printf("| **Name** | %s |\n", entry.Name)
	fmt.Printf("| **Unit** | %s |\n", entry.Unit)
	fmt.Printf("| **Ideal Direction** | %s |\n", entry.IdealDirection)
	fmt.Printf("| **Data Source** | %s |\n", entry.DataSource)
	fmt.Printf("| **Aggregation** | %s |\n", entry.Aggregation)
	fmt.Printf("| **Display Format** | `%s` |\n", entry.DisplayFormat)
	fmt.Printf("| **Statistical Test** | %s |\n", yesNo(entry.StatisticalTest))
	fmt.Printf("| **Stopping-Rule Eligible** | %s |\n", yesNo(entry.StoppingRuleEligible))
	if entry.Status != "" {
		fmt.Printf("| **Status** | %s |\n", entry.Status)
		fmt.Printf("| **Reason** | %s |\n", entry.Reason)
	}
	fmt.Println()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
