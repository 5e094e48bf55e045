// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for identifiers that end up in database
// keys, Flux queries, file paths, or exported tag values. Using these
// validators prevents injection attacks (Flux injection, path traversal) and
// keeps archive keys and export tags well-formed.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// metricKeyPattern matches valid metric keys.
// Allows: letters, digits, underscores, dots, hyphens. Keys are
// case-sensitive ("tokens_in" and "TOKENS_IN" are distinct).
// Max length: 128 characters.
var metricKeyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.\-]{0,127}$`)

// modelNamePattern matches valid model names.
// Allows: letters, digits, dots, underscores, hyphens, colons (registry
// tags like "llama3.1:70b") and slashes (namespaced names).
// Max length: 128 characters.
var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:/\-]{0,127}$`)

// frameworkLabelPattern matches valid framework labels.
// Allows: letters, digits, underscores, dots, hyphens.
// Max length: 64 characters.
var frameworkLabelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,63}$`)

// runIDPattern matches valid run identifiers.
// Allows: letters, digits, underscores, dots, hyphens.
// Max length: 128 characters.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{0,127}$`)

// ValidateMetricKey validates a metric key before it is used as a registry
// lookup, archive key component, or export tag value.
//
// Valid keys:
//   - 1-128 characters
//   - Start with a letter
//   - Letters, digits, underscores, dots, hyphens
//
// Returns an error if the key is invalid.
//
// Example:
//
//	if err := validation.ValidateMetricKey(key); err != nil {
//	    return fmt.Errorf("invalid metric key: %w", err)
//	}
//	// Safe to use in a Flux tag filter
func ValidateMetricKey(key string) error {
	if key == "" {
		return fmt.Errorf("metric key cannot be empty")
	}

	if !metricKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid metric key format: %q (must be 1-128 chars, start with a letter, contain only letters, digits, underscores, dots, or hyphens)", key)
	}

	return nil
}

// ValidateMetricKeys validates multiple metric keys.
// Returns an error listing all invalid keys if any fail validation.
func ValidateMetricKeys(keys []string) error {
	var invalid []string
	for _, k := range keys {
		if err := ValidateMetricKey(k); err != nil {
			invalid = append(invalid, k)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid metric keys: %v", invalid)
	}
	return nil
}

// ValidateModelName validates a model name from a pricing table or run record.
func ValidateModelName(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if !modelNamePattern.MatchString(model) {
		return fmt.Errorf("invalid model name format: %q (must be 1-128 alphanumeric chars, dots, underscores, colons, slashes, or hyphens)", model)
	}

	return nil
}

// ValidateFrameworkLabel validates a framework label before it is used as a
// comparison group name or export tag value.
func ValidateFrameworkLabel(label string) error {
	if label == "" {
		return fmt.Errorf("framework label cannot be empty")
	}

	if !frameworkLabelPattern.MatchString(label) {
		return fmt.Errorf("invalid framework label format: %q (must be 1-64 alphanumeric chars, underscores, dots, or hyphens)", label)
	}

	return nil
}

// SanitizeFrameworkLabel normalizes and validates a framework label.
// Returns the lowercase label if valid, or an error if invalid.
//
// Use this when you need both validation and normalization:
//
//	group, err := validation.SanitizeFrameworkLabel(record.Framework)
//	if err != nil {
//	    return err
//	}
//	// group is lowercase and validated
func SanitizeFrameworkLabel(label string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	if err := ValidateFrameworkLabel(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ValidateRunID validates a run identifier before it appears in archive keys
// or error messages consumed by external tooling.
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id format: %q (must be 1-128 alphanumeric chars, underscores, dots, or hyphens)", id)
	}

	return nil
}
