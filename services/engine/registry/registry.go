// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package registry loads and serves the metric registry: the configuration
// document naming every metric the engine may analyze, plus the per-model
// pricing table used for token cost accounting.
//
// A registry document is parsed once into fully-typed definitions and is
// immutable afterwards; analysis passes share one instance read-only.
// Documents written in the legacy grouped-metrics shape are rejected
// outright rather than migrated silently.
//
// Thread Safety:
//
//	A loaded *Registry is safe for concurrent readers. Default and
//	ResetDefault are safe for concurrent use.
package registry

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/rankforge/rankforge/pkg/validation"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxRegistryFileSize caps external registry documents at 1MB. Larger
	// files indicate a misconfigured path, not a metric registry.
	MaxRegistryFileSize = 1024 * 1024

	// EnvRegistryPath names the environment variable Default consults for an
	// external registry document before falling back to the embedded one.
	EnvRegistryPath = "RANKFORGE_REGISTRY_PATH"
)

// legacySectionKeys are the subsection names used by the retired grouped
// registry shape. Any of them appearing under "metrics" rejects the whole
// document. Kept sorted so FormatError reports keys in a stable order.
var legacySectionKeys = []string{"derived_metrics", "excluded_metrics", "reliable_metrics"}

// =============================================================================
// Embedded Default Registry
// =============================================================================

//go:embed metrics.yaml
var defaultRegistryYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	registryLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankforge_registry_loads_total",
		Help: "Total successful metric registry loads by source",
	}, []string{"source"})

	registryLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_registry_load_errors_total",
		Help: "Total metric registry load failures",
	})

	registryLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rankforge_registry_load_duration_seconds",
		Help:    "Duration of metric registry loading and validation",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var registryTracer = otel.Tracer("engine.registry")

// =============================================================================
// Struct Validation
// =============================================================================

// metricValidate holds the compiled field rules for MetricDefinition.
// Initialized once in init() so the struct tags are resolved at package load
// rather than per document.
var metricValidate *validator.Validate

func init() {
	metricValidate = validator.New()

	// Report violations under the serialized field names rather than the Go
	// ones, so messages match what users see in the YAML document.
	metricValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
}

// =============================================================================
// Types
// =============================================================================

// MetricStatus marks metrics the engine knows about but does not measure
// directly. The zero value means the metric is measured from run records.
type MetricStatus string

const (
	// StatusMeasured marks a metric whose values come directly from run
	// records.
	StatusMeasured MetricStatus = ""

	// StatusDerived marks a metric computed by the engine (for example by
	// the cost model) rather than read from run records.
	StatusDerived MetricStatus = "derived"

	// StatusUnmeasured marks a metric tracked in the registry but not yet
	// captured by any data source.
	StatusUnmeasured MetricStatus = "unmeasured"
)

// MetricDefinition is one fully-typed metric entry. Definitions are resolved
// at load time; downstream code never re-checks field presence.
type MetricDefinition struct {
	// Key is the registry key the metric is stored and looked up under.
	Key string `json:"key" validate:"required"`

	// Name is the human-readable metric name.
	Name string `json:"name" validate:"required"`

	// Description explains what the metric captures.
	Description string `json:"description"`

	// Unit is the unit of measure ("tokens", "seconds", "USD").
	Unit string `json:"unit"`

	// Category groups related metrics ("cost", "performance", "quality").
	Category string `json:"category" validate:"required"`

	// IdealDirection states whether lower or higher values are better.
	IdealDirection string `json:"ideal_direction" validate:"required,oneof=minimize maximize"`

	// DataSource names where values for this metric originate.
	DataSource string `json:"data_source"`

	// Aggregation is the preferred cross-run summary ("mean", "median").
	Aggregation string `json:"aggregation"`

	// DisplayFormat is the printf verb renderers format values with.
	DisplayFormat string `json:"display_format"`

	// StatisticalTest marks metrics included in significance testing.
	StatisticalTest bool `json:"statistical_test"`

	// StoppingRuleEligible marks metrics usable by run-count stopping rules.
	StoppingRuleEligible bool `json:"stopping_rule_eligible"`

	// Status is empty for measured metrics, "derived" or "unmeasured"
	// otherwise.
	Status MetricStatus `json:"status,omitempty" validate:"omitempty,oneof=derived unmeasured"`

	// Reason explains a non-empty Status. Required whenever Status is set.
	Reason string `json:"reason,omitempty" validate:"required_with=Status"`
}

// Measured reports whether values for this metric come directly from run
// records.
func (d MetricDefinition) Measured() bool {
	return d.Status == StatusMeasured
}

// PricingEntry is one per-model pricing row, in USD per one million tokens.
type PricingEntry struct {
	// InputPrice is the price per 1M uncached input tokens.
	InputPrice float64 `json:"input_price"`

	// CachedPrice is the price per 1M cache-read input tokens. Never above
	// InputPrice: cache reads are a discount.
	CachedPrice float64 `json:"cached_price"`

	// OutputPrice is the price per 1M output tokens.
	OutputPrice float64 `json:"output_price"`
}

// documentYAML is the root structure for YAML deserialization. Metric bodies
// stay as yaml.Node until the legacy-shape scan has passed.
type documentYAML struct {
	Metrics map[string]yaml.Node `yaml:"metrics"`
	Pricing pricingYAML          `yaml:"pricing"`
}

type pricingYAML struct {
	Models map[string]pricingEntryYAML `yaml:"models"`
}

type metricYAML struct {
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

type pricingEntryYAML struct {
	InputPrice  float64 `yaml:"input_price"`
	CachedPrice float64 `yaml:"cached_price"`
	OutputPrice float64 `yaml:"output_price"`
}

// Registry is a loaded, immutable metric registry.
//
// Construct via Load, Parse, or LoadDefault. All methods are read-only;
// callers needing a different schema load a new instance rather than
// mutating a shared one.
type Registry struct {
	metrics  map[string]MetricDefinition
	pricing  map[string]PricingEntry
	source   string
	loadedAt int64
}

// =============================================================================
// Default Instance
// =============================================================================

var (
	defaultMu   sync.RWMutex
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the process-wide registry, loading it on first call.
//
// Description:
//
//	Loads from the document named by RANKFORGE_REGISTRY_PATH when set,
//	otherwise from the embedded default. A configured-but-broken external
//	document is a hard error, never silently replaced by the embedded one.
//	Components take an explicit *Registry in normal use; Default exists for
//	CLI entry points.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Registry - The loaded registry. Never nil on success.
//	error - Non-nil if loading failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func Default(ctx context.Context) (*Registry, error) {
	if ctx == nil {
		return nil, fmt.Errorf("registry.Default: ctx must not be nil")
	}

	defaultMu.RLock()
	if defaultReg != nil || defaultErr != nil {
		reg, err := defaultReg, defaultErr
		defaultMu.RUnlock()
		return reg, err
	}
	defaultMu.RUnlock()

	defaultMu.Lock()
	defer defaultMu.Unlock()

	// Double-check after acquiring write lock
	if defaultReg != nil || defaultErr != nil {
		return defaultReg, defaultErr
	}

	defaultOnce.Do(func() {
		defaultReg, defaultErr = loadDefault(ctx)
	})

	return defaultReg, defaultErr
}

// ResetDefault clears the cached default registry and sync.Once state so the
// next Default call reloads it.
//
// WARNING: This function is intended for testing only. Do not use in
// production code as it can cause inconsistent state if called while other
// goroutines are using the registry.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultOnce = sync.Once{}
	defaultReg = nil
	defaultErr = nil
}

// loadDefault resolves the default registry source. External documents fail
// loud: a bad document must surface as a config error, not fall back to the
// embedded schema and silently produce differently-shaped reports.
func loadDefault(ctx context.Context) (*Registry, error) {
	if path := os.Getenv(EnvRegistryPath); path != "" {
		reg, err := Load(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("loading metric registry from %s: %w", path, err)
		}
		slog.Info("metric registry loaded from external document",
			slog.String("path", path),
			slog.Int("metric_count", reg.Len()))
		return reg, nil
	}

	slog.Debug("using embedded metric registry")
	return LoadDefault(ctx)
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and parses a registry document from disk.
//
// Description:
//
//	The path must not contain ".." segments, and the file must stay under
//	MaxRegistryFileSize. The parsed registry records the absolute file path
//	as its source.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Filesystem path of the YAML document.
//
// Outputs:
//
//	*Registry - The parsed registry. Never nil on success.
//	error - FormatError for legacy-shaped documents, ValidationError for
//	rule violations, or a wrapped I/O error.
func Load(ctx context.Context, path string) (*Registry, error) {
	ctx, span := registryTracer.Start(ctx, "registry.Load",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	data, absPath, err := readRegistryFile(path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		registryLoadErrors.Inc()
		return nil, err
	}

	return parse(ctx, data, absPath)
}

// LoadDefault parses the embedded default registry document.
func LoadDefault(ctx context.Context) (*Registry, error) {
	return parse(ctx, defaultRegistryYAML, "embedded")
}

// Parse parses a registry document held in memory.
func Parse(ctx context.Context, data []byte) (*Registry, error) {
	return parse(ctx, data, "inline")
}

// readRegistryFile reads an external registry document with security checks:
// no traversal segments in the supplied path, and a hard size cap.
func readRegistryFile(path string) ([]byte, string, error) {
	if strings.Contains(path, "..") {
		return nil, "", fmt.Errorf("registry path traversal not allowed: %s", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("resolving registry path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("stat registry file: %w", err)
	}
	if info.Size() > MaxRegistryFileSize {
		return nil, "", fmt.Errorf("registry file too large: %d bytes (max %d)", info.Size(), MaxRegistryFileSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("reading registry file: %w", err)
	}

	return data, absPath, nil
}

// parse wraps parseDocument with tracing, metrics, and logging.
func parse(ctx context.Context, data []byte, source string) (*Registry, error) {
	_, span := registryTracer.Start(ctx, "registry.Parse")
	defer span.End()

	start := time.Now()
	defer func() {
		registryLoadDuration.Observe(time.Since(start).Seconds())
	}()

	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("yaml_size", len(data)),
	)

	reg, err := parseDocument(data, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		registryLoadErrors.Inc()
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("metric_count", len(reg.metrics)),
		attribute.Int("model_count", len(reg.pricing)),
	)
	registryLoadsTotal.WithLabelValues(source).Inc()

	slog.Info("metric registry loaded",
		slog.String("source", source),
		slog.Int("metric_count", len(reg.metrics)),
		slog.Int("model_count", len(reg.pricing)))

	return reg, nil
}

// parseDocument parses and validates one registry document. The legacy-shape
// scan runs before any per-metric parsing so a partially migrated document
// is rejected as a whole, with every legacy key named.
func parseDocument(data []byte, source string) (*Registry, error) {
	var doc documentYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling registry YAML: %w", err)
	}

	if legacy := legacyKeysIn(doc.Metrics); len(legacy) > 0 {
		return nil, &FormatError{LegacyKeys: legacy}
	}

	if len(doc.Metrics) == 0 {
		return nil, &ValidationError{
			Subject: "metrics",
			Detail:  "section is required and must define at least one metric",
		}
	}

	metricKeys := make([]string, 0, len(doc.Metrics))
	for key := range doc.Metrics {
		metricKeys = append(metricKeys, key)
	}
	sort.Strings(metricKeys)

	metrics := make(map[string]MetricDefinition, len(doc.Metrics))
	for _, key := range metricKeys {
		def, err := buildMetric(key, doc.Metrics[key])
		if err != nil {
			return nil, err
		}
		metrics[key] = def
	}

	modelNames := make([]string, 0, len(doc.Pricing.Models))
	for model := range doc.Pricing.Models {
		modelNames = append(modelNames, model)
	}
	sort.Strings(modelNames)

	pricing := make(map[string]PricingEntry, len(doc.Pricing.Models))
	for _, model := range modelNames {
		entry, err := buildPricing(model, doc.Pricing.Models[model])
		if err != nil {
			return nil, err
		}
		pricing[model] = entry
	}

	return &Registry{
		metrics:  metrics,
		pricing:  pricing,
		source:   source,
		loadedAt: time.Now().UnixMilli(),
	}, nil
}

// legacyKeysIn returns the legacy subsection keys present under "metrics",
// sorted.
func legacyKeysIn(metrics map[string]yaml.Node) []string {
	var found []string
	for _, legacy := range legacySectionKeys {
		if _, ok := metrics[legacy]; ok {
			found = append(found, legacy)
		}
	}
	return found
}

// buildMetric converts one YAML entry into a validated MetricDefinition.
func buildMetric(key string, node yaml.Node) (MetricDefinition, error) {
	if err := validation.ValidateMetricKey(key); err != nil {
		return MetricDefinition{}, &ValidationError{Subject: key, Detail: err.Error()}
	}

	var raw metricYAML
	if err := node.Decode(&raw); err != nil {
		return MetricDefinition{}, &ValidationError{
			Subject: key,
			Detail:  fmt.Sprintf("unmarshaling definition: %v", err),
		}
	}

	def := MetricDefinition{
		Key:                  key,
		Name:                 raw.Name,
		Description:          raw.Description,
		Unit:                 raw.Unit,
		Category:             raw.Category,
		IdealDirection:       raw.IdealDirection,
		DataSource:           raw.DataSource,
		Aggregation:          raw.Aggregation,
		DisplayFormat:        raw.DisplayFormat,
		StatisticalTest:      raw.StatisticalTest,
		StoppingRuleEligible: raw.StoppingRuleEligible,
		Status:               MetricStatus(raw.Status),
		Reason:               raw.Reason,
	}

	if err := metricValidate.Struct(def); err != nil {
		return MetricDefinition{}, &ValidationError{Subject: key, Detail: describeFieldErrors(err)}
	}

	return def, nil
}

// buildPricing validates one pricing row. Cache reads are billed as a
// discount on input, so cached_price may never exceed input_price.
func buildPricing(model string, raw pricingEntryYAML) (PricingEntry, error) {
	if err := validation.ValidateModelName(model); err != nil {
		return PricingEntry{}, &ValidationError{Subject: model, Detail: err.Error()}
	}

	if raw.InputPrice < 0 || raw.CachedPrice < 0 || raw.OutputPrice < 0 {
		return PricingEntry{}, &ValidationError{
			Subject: model,
			Detail: fmt.Sprintf("prices must be non-negative (input_price=%g cached_price=%g output_price=%g)",
				raw.InputPrice, raw.CachedPrice, raw.OutputPrice),
		}
	}

	if raw.CachedPrice > raw.InputPrice {
		return PricingEntry{}, &ValidationError{
			Subject: model,
			Detail: fmt.Sprintf("cached_price %g exceeds input_price %g; cache reads must not cost more than uncached input",
				raw.CachedPrice, raw.InputPrice),
		}
	}

	return PricingEntry{
		InputPrice:  raw.InputPrice,
		CachedPrice: raw.CachedPrice,
		OutputPrice: raw.OutputPrice,
	}, nil
}

// describeFieldErrors renders validator failures into one actionable string.
func describeFieldErrors(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeFieldError(fe))
	}
	return strings.Join(parts, "; ")
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_with":
		return fmt.Sprintf("%s is required when status is set", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s (got %q)",
			fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	default:
		return fmt.Sprintf("%s fails rule %q", fe.Field(), fe.Tag())
	}
}

// =============================================================================
// Read Accessors
// =============================================================================

// Get returns the definition stored under key.
func (r *Registry) Get(key string) (MetricDefinition, bool) {
	if r == nil {
		return MetricDefinition{}, false
	}
	def, ok := r.metrics[key]
	return def, ok
}

// ByCategory returns the definitions in the given category, ordered by key.
func (r *Registry) ByCategory(category string) []MetricDefinition {
	return r.ByFilter(func(d MetricDefinition) bool { return d.Category == category })
}

// ByFilter returns the definitions the keep predicate accepts, ordered by
// key.
func (r *Registry) ByFilter(keep func(MetricDefinition) bool) []MetricDefinition {
	if r == nil || keep == nil {
		return nil
	}
	defs := make([]MetricDefinition, 0, len(r.metrics))
	for _, key := range r.Keys() {
		if def := r.metrics[key]; keep(def) {
			defs = append(defs, def)
		}
	}
	return defs
}

// ForStatisticalTest returns the metrics included in significance testing.
func (r *Registry) ForStatisticalTest() []MetricDefinition {
	return r.ByFilter(func(d MetricDefinition) bool { return d.StatisticalTest })
}

// ForStoppingRule returns the metrics usable by run-count stopping rules.
func (r *Registry) ForStoppingRule() []MetricDefinition {
	return r.ByFilter(func(d MetricDefinition) bool { return d.StoppingRuleEligible })
}

// Keys returns all metric keys, sorted.
func (r *Registry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.metrics))
	for k := range r.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Categories returns the distinct metric categories, sorted.
func (r *Registry) Categories() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, def := range r.metrics {
		seen[def.Category] = struct{}{}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}

// Len returns the number of metric definitions.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.metrics)
}

// Pricing returns the pricing row for model. Absence is reported through the
// boolean so callers decide whether a missing model is fatal.
func (r *Registry) Pricing(model string) (PricingEntry, bool) {
	if r == nil {
		return PricingEntry{}, false
	}
	entry, ok := r.pricing[model]
	return entry, ok
}

// Models returns the model names with pricing rows, sorted.
func (r *Registry) Models() []string {
	if r == nil {
		return nil
	}
	models := make([]string, 0, len(r.pricing))
	for m := range r.pricing {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// Source reports where this registry was loaded from: an absolute file path,
// "embedded", or "inline".
func (r *Registry) Source() string {
	if r == nil {
		return ""
	}
	return r.source
}

// LoadedAt returns the load timestamp in Unix milliseconds.
func (r *Registry) LoadedAt() int64 {
	if r == nil {
		return 0
	}
	return r.loadedAt
}

// Validate checks one run's aggregate metric map against the registry and
// returns human-readable violations: measured registry metrics with no
// value, keys the registry does not know, and non-numeric values. Advisory
// only; callers decide whether violations are fatal. Derived and unmeasured
// metrics are never expected in run data, so their absence is not reported.
func (r *Registry) Validate(data map[string]any) []string {
	violations := make([]string, 0)
	if r == nil {
		return violations
	}

	for _, key := range r.Keys() {
		def := r.metrics[key]
		if !def.Measured() {
			continue
		}
		if _, ok := data[key]; !ok {
			violations = append(violations, fmt.Sprintf("missing value for registry metric %q", key))
		}
	}

	dataKeys := make([]string, 0, len(data))
	for k := range data {
		dataKeys = append(dataKeys, k)
	}
	sort.Strings(dataKeys)

	for _, key := range dataKeys {
		if _, ok := r.metrics[key]; !ok {
			violations = append(violations, fmt.Sprintf("%q is not a registered metric", key))
			continue
		}
		switch v := data[key].(type) {
		case nil:
			violations = append(violations, fmt.Sprintf("metric %q is null (expected a number)", key))
		default:
			if !isNumericValue(v) {
				violations = append(violations, fmt.Sprintf("metric %q has non-numeric value %v (%T)", key, v, v))
			}
		}
	}

	return violations
}

// isNumericValue reports whether a decoded aggregate metric value counts as
// numeric data. JSON numbers arrive as float64 or json.Number depending on
// decoder configuration; YAML producers may hand over ints.
func isNumericValue(v any) bool {
	switch n := v.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}
