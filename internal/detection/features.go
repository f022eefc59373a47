// Hydra - Competitive Intelligence Correlation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/hydra

package detection

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/hydra/internal/models"
)

// entityFields are the payload keys that name an entity.
var entityFields = []string{"company", "product_name", "technology_name", "patent_number"}

// textFields are inspected for text-shape anomalies, besides the description.
var textFields = []string{"title", "message", "ad_copy", "summary"}

// keywordRe matches runs of four or more Unicode word characters.
var keywordRe = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{4,}`)

// Entities returns the lower-cased subject and entity payload values of e.
func Entities(e *models.Event) []string {
	out := []string{strings.ToLower(strings.TrimSpace(e.Subject))}
	for _, f := range entityFields {
		if v, ok := e.Payload[f]; ok && v != nil {
			if s := strings.ToLower(strings.TrimSpace(fmt.Sprint(v))); s != "" {
				out = append(out, s)
			}
		}
	}
	return models.SortedSet(out...)
}

// SharedEntities returns the entities a and b have in common, sorted.
func SharedEntities(a, b *models.Event) []string {
	set := make(map[string]struct{})
	for _, s := range Entities(a) {
		set[s] = struct{}{}
	}
	var out []string
	for _, s := range Entities(b) {
		if _, ok := set[s]; ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Keywords returns the distinct lower-cased words of four or more characters
// in the subject, description and string payload values of e.
func Keywords(e *models.Event) map[string]struct{} {
	var b strings.Builder
	b.WriteString(e.Subject)
	b.WriteByte(' ')
	b.WriteString(e.Description)

	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := e.Payload[k].(string); ok {
			b.WriteByte(' ')
			b.WriteString(s)
		}
	}

	out := make(map[string]struct{})
	for _, w := range keywordRe.FindAllString(strings.ToLower(b.String()), -1) {
		out[w] = struct{}{}
	}
	return out
}

// SharedKeywords counts the keywords a and b have in common.
func SharedKeywords(a, b *models.Event) int {
	ka, kb := Keywords(a), Keywords(b)
	n := 0
	for w := range ka {
		if _, ok := kb[w]; ok {
			n++
		}
	}
	return n
}

// metricSource maps a payload key to a metric name, with an optional scale.
type metricSource struct {
	field  string
	metric string
	scale  float64
}

// producerMetrics lists the payload fields each producer contributes.
// Fields present in any payload under an anomaly metric name are picked up
// as well, see ExtractMetrics.
var producerMetrics = map[string][]metricSource{
	"price_watch": {
		{field: "price_change_percent", metric: "price_change", scale: 0.01},
		{field: "price_change", metric: "price_change_absolute"},
	},
	"social_pulse": {
		{field: "sentiment_score", metric: "sentiment"},
		{field: "engagement_count", metric: "engagement"},
	},
	"job_spy": {
		{field: "hiring_velocity", metric: "hiring_velocity"},
	},
	"tech_radar": {
		{field: "investment_amount", metric: "investment"},
	},
	"ad_tracker": {
		{field: "spend_change_percent", metric: "spend_change", scale: 0.01},
	},
	"patent_hawk": {
		{field: "patents_per_month", metric: "patent_rate"},
	},
}

// MetricExtractor turns events into named numeric metrics.
type MetricExtractor struct {
	// named are payload keys taken verbatim for every producer.
	named []string
}

// NewMetricExtractor returns an extractor that also takes the given payload
// keys verbatim from every event, typically the anomaly metric names.
func NewMetricExtractor(named []string) *MetricExtractor {
	cp := append([]string(nil), named...)
	sort.Strings(cp)
	return &MetricExtractor{named: cp}
}

// Extract returns the metrics of e. confidence and severity_weight are always
// present.
func (x *MetricExtractor) Extract(e *models.Event) map[string]float64 {
	m := map[string]float64{
		"confidence":      e.Confidence,
		"severity_weight": float64(e.Severity.Rank()),
	}
	for _, src := range producerMetrics[e.ProducerID] {
		if v, ok := number(e.Payload[src.field]); ok {
			if src.scale != 0 {
				v *= src.scale
			}
			m[src.metric] = v
		}
	}
	if e.ProducerID == "job_spy" {
		lo, okLo := number(e.Payload["salary_min"])
		hi, okHi := number(e.Payload["salary_max"])
		if okLo && okHi {
			m["salary"] = (lo + hi) / 2
		}
	}
	for _, k := range x.named {
		if _, set := m[k]; set {
			continue
		}
		if v, ok := number(e.Payload[k]); ok {
			m[k] = v
		}
	}
	return m
}

// number converts JSON-decoded payload values to float64.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
