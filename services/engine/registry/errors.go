// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package registry

import (
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

// MigrationGuide is the in-repo document describing how to convert a legacy
// grouped registry document into the flat shape this package accepts.
const MigrationGuide = "docs/registry_migration.md"

// FormatError reports a registry document still written in the retired
// grouped shape, where metric definitions were nested under
// reliable_metrics, derived_metrics, and excluded_metrics subsections.
// The document is rejected as a whole, even when some entries already use
// the flat shape.
type FormatError struct {
	// LegacyKeys lists every legacy subsection key found under "metrics",
	// sorted.
	LegacyKeys []string
}

func (e *FormatError) Error() string {
	quoted := make([]string, len(e.LegacyKeys))
	for i, k := range e.LegacyKeys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	return fmt.Sprintf(
		"registry uses the legacy grouped-metrics shape: found %s under \"metrics\"; "+
			"each metric must be a single flat entry keyed by metric name (see %s)",
		strings.Join(quoted, ", "), MigrationGuide)
}

// ValidationError reports a structurally valid registry document whose
// content violates a load-time rule: a malformed metric definition, an
// invalid key, or an inconsistent pricing row.
type ValidationError struct {
	// Subject is the metric key, model name, or section the rule applies to.
	Subject string

	// Detail describes the violated rule, including the offending values.
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry validation failed for %q: %s", e.Subject, e.Detail)
}
