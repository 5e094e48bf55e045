// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package costmodel converts token counts into dollar costs using the
// registry's pricing table, with cache-discount accounting.
//
// The package is deliberately pure: Calculate performs no I/O, reads no
// clock, and emits no logs or telemetry, so identical inputs always produce
// bit-identical outputs. Reproducibility checks depend on that.
package costmodel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rankforge/rankforge/services/engine/registry"
)

// ErrInvalidArgument is returned when token counts violate the calculation
// preconditions. Wrapped errors carry the offending values; match with
// errors.Is.
var ErrInvalidArgument = errors.New("invalid argument")

// MixedModel is the model label Sum reports when the summed breakdowns do
// not all share one model.
const MixedModel = "(mixed)"

// Prices in the registry are quoted per one million tokens.
const perMillion = 1e6

// Model prices token usage for a single model. Construct with New; the
// zero value is not usable.
type Model struct {
	name    string
	pricing registry.PricingEntry
}

// New builds a cost model for the named model from the registry's pricing
// table. If the registry has no pricing entry for the model, the error
// names every model that does have one.
func New(model string, reg *registry.Registry) (*Model, error) {
	if reg == nil {
		return nil, fmt.Errorf("costmodel: registry must not be nil")
	}
	pricing, ok := reg.Pricing(model)
	if !ok {
		available := "(none)"
		if models := reg.Models(); len(models) > 0 {
			available = strings.Join(models, ", ")
		}
		return nil, fmt.Errorf("no pricing for model %q; available models: %s", model, available)
	}
	return &Model{name: model, pricing: pricing}, nil
}

// Name returns the model name the pricing was resolved for.
func (m *Model) Name() string {
	if m == nil {
		return ""
	}
	return m.name
}

// Pricing returns the per-million-token prices backing this model.
func (m *Model) Pricing() registry.PricingEntry {
	if m == nil {
		return registry.PricingEntry{}
	}
	return m.pricing
}

// Calculate prices a run's token usage.
//
// All counts must be non-negative and cachedTokens must not exceed
// tokensIn; violations wrap ErrInvalidArgument. With prices quoted per one
// million tokens:
//
//	UncachedInputCost = (tokensIn - cachedTokens) * InputPrice  / 1e6
//	CachedInputCost   = cachedTokens              * CachedPrice / 1e6
//	OutputCost        = tokensOut                 * OutputPrice / 1e6
//	TotalCost         = sum of the three
//	CacheSavings      = cachedTokens * (InputPrice - CachedPrice) / 1e6
func (m *Model) Calculate(tokensIn, tokensOut, cachedTokens int64) (Breakdown, error) {
	if m == nil {
		return Breakdown{}, fmt.Errorf("%w: nil cost model", ErrInvalidArgument)
	}
	if tokensIn < 0 || tokensOut < 0 || cachedTokens < 0 {
		return Breakdown{}, fmt.Errorf("%w: token counts must be non-negative (tokens_in=%d tokens_out=%d cached_tokens=%d)",
			ErrInvalidArgument, tokensIn, tokensOut, cachedTokens)
	}
	if cachedTokens > tokensIn {
		return Breakdown{}, fmt.Errorf("%w: cached_tokens %d exceeds tokens_in %d",
			ErrInvalidArgument, cachedTokens, tokensIn)
	}

	uncached := float64(tokensIn-cachedTokens) * m.pricing.InputPrice / perMillion
	cached := float64(cachedTokens) * m.pricing.CachedPrice / perMillion
	output := float64(tokensOut) * m.pricing.OutputPrice / perMillion

	return Breakdown{
		Model:             m.name,
		TokensIn:          tokensIn,
		TokensOut:         tokensOut,
		CachedTokens:      cachedTokens,
		UncachedInputCost: uncached,
		CachedInputCost:   cached,
		OutputCost:        output,
		TotalCost:         uncached + cached + output,
		CacheSavings:      float64(cachedTokens) * (m.pricing.InputPrice - m.pricing.CachedPrice) / perMillion,
	}, nil
}

// Breakdown is the priced view of one unit of token usage, echoing the
// inputs it was computed from.
type Breakdown struct {
	Model        string `json:"model"`
	TokensIn     int64  `json:"tokens_in"`
	TokensOut    int64  `json:"tokens_out"`
	CachedTokens int64  `json:"cached_tokens"`

	UncachedInputCost float64 `json:"uncached_input_cost_usd"`
	CachedInputCost   float64 `json:"cached_input_cost_usd"`
	OutputCost        float64 `json:"output_cost_usd"`
	TotalCost         float64 `json:"total_cost_usd"`
	CacheSavings      float64 `json:"cache_savings_usd"`
}

// CacheHitRate returns CachedTokens/TokensIn, or 0 when no input tokens
// were recorded.
func (b Breakdown) CacheHitRate() float64 {
	if b.TokensIn == 0 {
		return 0
	}
	return float64(b.CachedTokens) / float64(b.TokensIn)
}

// Sum aggregates per-run breakdowns into one. Token counts and costs add
// component-wise; the model name is preserved when every breakdown shares
// it and reported as MixedModel otherwise. Summing nothing returns the
// zero Breakdown.
func Sum(breakdowns []Breakdown) Breakdown {
	if len(breakdowns) == 0 {
		return Breakdown{}
	}

	total := Breakdown{Model: breakdowns[0].Model}
	for _, b := range breakdowns {
		if b.Model != total.Model {
			total.Model = MixedModel
		}
		total.TokensIn += b.TokensIn
		total.TokensOut += b.TokensOut
		total.CachedTokens += b.CachedTokens
		total.UncachedInputCost += b.UncachedInputCost
		total.CachedInputCost += b.CachedInputCost
		total.OutputCost += b.OutputCost
		total.TotalCost += b.TotalCost
		total.CacheSavings += b.CacheSavings
	}
	return total
}
