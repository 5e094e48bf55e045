// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package costmodel

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rankforge/rankforge/services/engine/registry"
)

const tolerance = 1e-6

func embeddedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.LoadDefault(context.Background())
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	return reg
}

func approxEqual(got, want float64) bool {
	return math.Abs(got-want) < tolerance
}

// TestNew verifies model resolution against the pricing table, including
// the requirement that a miss names every model that is available.
func TestNew(t *testing.T) {
	reg := embeddedRegistry(t)

	t.Run("known model", func(t *testing.T) {
		model, err := New("gpt-4o-mini", reg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if model.Name() != "gpt-4o-mini" {
			t.Errorf("Name() = %q, want gpt-4o-mini", model.Name())
		}
		if p := model.Pricing(); p.InputPrice != 0.150 || p.CachedPrice != 0.075 || p.OutputPrice != 0.600 {
			t.Errorf("Pricing() = %+v, want 0.150/0.075/0.600", p)
		}
	})

	t.Run("unknown model names available ones", func(t *testing.T) {
		_, err := New("gpt-99", reg)
		if err == nil {
			t.Fatal("New() error = nil, want pricing miss")
		}
		msg := err.Error()
		if !strings.Contains(msg, "gpt-99") || !strings.Contains(msg, "available models") {
			t.Errorf("error message %q missing model name or availability hint", msg)
		}
		if !strings.Contains(msg, "gpt-4o-mini") {
			t.Errorf("error message %q does not list available models", msg)
		}
	})

	t.Run("empty pricing table", func(t *testing.T) {
		noPricing, err := registry.Parse(context.Background(), []byte(`
metrics:
  tokens_in:
    name: Input Tokens
    category: cost
    ideal_direction: minimize
`))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		_, err = New("gpt-4o-mini", noPricing)
		if err == nil || !strings.Contains(err.Error(), "none") {
			t.Errorf("New() error = %v, want message noting no models are priced", err)
		}
	})

	t.Run("nil registry", func(t *testing.T) {
		if _, err := New("gpt-4o-mini", nil); err == nil {
			t.Error("New() error = nil, want nil-registry guard")
		}
	})
}

// TestCalculate_KnownBreakdown pins the full formula set on gpt-4o-mini
// pricing (0.150/0.075/0.600 per million tokens).
func TestCalculate_KnownBreakdown(t *testing.T) {
	model, err := New("gpt-4o-mini", embeddedRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b, err := model.Calculate(100000, 50000, 20000)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"UncachedInputCost", b.UncachedInputCost, 0.012},
		{"CachedInputCost", b.CachedInputCost, 0.0015},
		{"OutputCost", b.OutputCost, 0.030},
		{"TotalCost", b.TotalCost, 0.0435},
		{"CacheSavings", b.CacheSavings, 0.0015},
		{"CacheHitRate", b.CacheHitRate(), 0.2},
	}
	for _, c := range checks {
		if !approxEqual(c.got, c.want) {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if b.Model != "gpt-4o-mini" || b.TokensIn != 100000 || b.TokensOut != 50000 || b.CachedTokens != 20000 {
		t.Errorf("echoed inputs = %+v, want the Calculate arguments", b)
	}
}

// TestCalculate_ArgumentErrors verifies the preconditions: non-negative
// counts and cachedTokens bounded by tokensIn, all wrapping
// ErrInvalidArgument with the offending values in the message.
func TestCalculate_ArgumentErrors(t *testing.T) {
	model, err := New("gpt-4o-mini", embeddedRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name            string
		in, out, cached int64
		wantInMsg       string
	}{
		{"negative tokens in", -1, 10, 0, "-1"},
		{"negative tokens out", 10, -5, 0, "-5"},
		{"negative cached tokens", 10, 0, -3, "-3"},
		{"cached exceeds input", 100, 10, 150, "150"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.Calculate(tt.in, tt.out, tt.cached)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Calculate() error = %v, want ErrInvalidArgument", err)
			}
			if !strings.Contains(err.Error(), tt.wantInMsg) {
				t.Errorf("error message %q missing offending value %q", err.Error(), tt.wantInMsg)
			}
		})
	}
}

// TestCalculate_Deterministic verifies bit-identical outputs for identical
// inputs, the property reproducibility checks rely on.
func TestCalculate_Deterministic(t *testing.T) {
	model, err := New("claude-sonnet-4", embeddedRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	first, err := model.Calculate(987654, 321000, 456789)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	second, err := model.Calculate(987654, 321000, 456789)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if first != second {
		t.Errorf("repeated Calculate() differs: %+v vs %+v", first, second)
	}
}

// TestCalculate_ZeroUsage verifies the all-zero degenerate case.
func TestCalculate_ZeroUsage(t *testing.T) {
	model, err := New("gpt-4o", embeddedRegistry(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	b, err := model.Calculate(0, 0, 0)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if b.TotalCost != 0 || b.CacheSavings != 0 {
		t.Errorf("zero usage priced at %+v, want all-zero costs", b)
	}
	if b.CacheHitRate() != 0 {
		t.Errorf("CacheHitRate() = %v, want 0 for zero input tokens", b.CacheHitRate())
	}
}

// TestSum verifies aggregate accounting across runs: component-wise sums,
// model preservation when uniform, and the mixed marker otherwise.
func TestSum(t *testing.T) {
	reg := embeddedRegistry(t)
	mini, err := New("gpt-4o-mini", reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sonnet, err := New("claude-sonnet-4", reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	a, _ := mini.Calculate(100000, 50000, 20000)
	b, _ := mini.Calculate(200000, 10000, 0)

	t.Run("uniform model", func(t *testing.T) {
		total := Sum([]Breakdown{a, b})
		if total.Model != "gpt-4o-mini" {
			t.Errorf("Model = %q, want gpt-4o-mini", total.Model)
		}
		if total.TokensIn != 300000 || total.TokensOut != 60000 || total.CachedTokens != 20000 {
			t.Errorf("token sums = %+v, want component-wise totals", total)
		}
		if !approxEqual(total.TotalCost, a.TotalCost+b.TotalCost) {
			t.Errorf("TotalCost = %v, want %v", total.TotalCost, a.TotalCost+b.TotalCost)
		}
	})

	t.Run("mixed models", func(t *testing.T) {
		c, _ := sonnet.Calculate(1000, 1000, 0)
		total := Sum([]Breakdown{a, c})
		if total.Model != MixedModel {
			t.Errorf("Model = %q, want %q", total.Model, MixedModel)
		}
		if !approxEqual(total.CacheSavings, a.CacheSavings+c.CacheSavings) {
			t.Errorf("CacheSavings = %v, want %v", total.CacheSavings, a.CacheSavings+c.CacheSavings)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if total := Sum(nil); total != (Breakdown{}) {
			t.Errorf("Sum(nil) = %+v, want zero value", total)
		}
	})
}
