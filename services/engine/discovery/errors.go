// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports run data that breaks the discovery contract:
// either a record without the aggregate-metrics object, or metric keys the
// registry does not know.
//
// Exactly one of the two variants is populated. Structural violations carry
// Run and Missing; unknown-metric failures carry Unknown, filled only after
// the scan has covered every run so the message is complete rather than
// first-failure-only.
type ValidationError struct {
	// Run identifies the offending run (run id, or source file when the id
	// is empty) for structural violations.
	Run string

	// Missing is the name of the absent field for structural violations.
	Missing string

	// Unknown maps each unregistered metric key to the run where it was
	// first seen.
	Unknown map[string]string
}

func (e *ValidationError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("run %q has no %q object; every run record must carry one", e.Run, e.Missing)
	}

	if len(e.Unknown) > 0 {
		keys := make([]string, 0, len(e.Unknown))
		for k := range e.Unknown {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%q (first seen in run %q)", k, e.Unknown[k])
		}
		return fmt.Sprintf("unknown metric keys not present in the registry: %s; add them to the registry before analyzing",
			strings.Join(parts, ", "))
	}

	return "run data validation failed"
}

// UnknownKeys returns the unregistered metric keys, sorted.
func (e *ValidationError) UnknownKeys() []string {
	keys := make([]string, 0, len(e.Unknown))
	for k := range e.Unknown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
