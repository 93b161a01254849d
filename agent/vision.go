package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent/internal/prompts"
	"rabbitry/llm"
	"rabbitry/store"
)

const visionDescription = "Camera vision monitoring, behavior alerts, motion and posture analysis, and cage-level health risk signals"

const (
	defaultVisionLimit      = 50
	defaultVisionConfidence = 0.75
	defaultVisionWindow     = 24
	maxVisionWindow         = 720
	maxVisionAlerts         = 10
)

// EventTypes is the vision event vocabulary.
var EventTypes = []string{
	"low_activity",
	"isolation_detected",
	"abnormal_posture",
	"fur_loss_pattern",
	"nest_risk",
	"kit_outside_nest",
	"aggression_detected",
	"overcrowding_detected",
	"no_feeder_approach",
}

// Severities in increasing order.
var Severities = []string{"low", "medium", "high", "critical"}

var eventRecommendations = map[string]string{
	"low_activity":          "Inspect rabbit activity and feeder/water access within 12 hours.",
	"isolation_detected":    "Check social isolation and possible illness indicators immediately.",
	"abnormal_posture":      "Perform a physical check for injury or pain signs as soon as possible.",
	"fur_loss_pattern":      "Inspect skin and fur condition, then isolate if contagious causes are suspected.",
	"nest_risk":             "Check nest box condition and maternal behavior now.",
	"kit_outside_nest":      "Return kits to nest and verify nest warmth immediately.",
	"aggression_detected":   "Separate aggressive animals and review overcrowding or stress factors.",
	"overcrowding_detected": "Reduce cage density and monitor stress markers.",
	"no_feeder_approach":    "Check feed quality and rabbit appetite; inspect for early illness.",
}

const defaultEventRecommendation = "Review camera footage and inspect rabbit/cage conditions."

var eventColumns = []string{"id", "event_type", "severity", "confidence", "event_time", "source_camera_id", "cage_id", "rabbit_id", "status", "metadata"}

type VisionOptions struct {
	LLM llm.Completer
	// Events holds the vision_events table.
	Events              store.Tabular
	DefaultLimit        int
	ConfidenceThreshold float64
	Logger              hclog.Logger
	// Now is the clock for event windows; defaults to time.Now.
	Now func() time.Time
}

// VisionAgent turns camera events into alerts and a summary.
type VisionAgent struct {
	llm        llm.Completer
	events     store.Tabular
	limit      int
	confidence float64
	logger     hclog.Logger
	now        func() time.Time
}

func NewVisionAgent(opts VisionOptions) *VisionAgent {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = defaultVisionLimit
	}
	if opts.ConfidenceThreshold <= 0 || opts.ConfidenceThreshold > 1 {
		opts.ConfidenceThreshold = defaultVisionConfidence
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &VisionAgent{
		llm:        opts.LLM,
		events:     opts.Events,
		limit:      opts.DefaultLimit,
		confidence: opts.ConfidenceThreshold,
		logger:     opts.Logger,
		now:        opts.Now,
	}
}

func (a *VisionAgent) Name() string                         { return Vision }
func (a *VisionAgent) Description() string                  { return visionDescription }
func (a *VisionAgent) Initialize(ctx context.Context) error { return nil }

func (a *VisionAgent) ProcessQuery(ctx context.Context, query string, opts Options) (*Result, error) {
	intent := a.ExtractIntent(ctx, query)

	var events []store.Row
	if opts.Snapshot != nil {
		events = filterByIntent(opts.Snapshot, intent)
	} else {
		fetched, err := a.fetchEvents(ctx, intent, opts.Limit)
		if err != nil {
			a.logger.Warn("vision events query failed", "error", err)
			return Failure(Vision, query, err), nil
		}
		events = fetched
	}
	events = aboveConfidence(events, intent.ConfidenceThreshold)

	metrics := BuildMetrics(events)
	report := &VisionReport{
		Summary:             BuildSummary(events, metrics, intent, query),
		Alerts:              BuildAlerts(events),
		Metrics:             metrics,
		TotalEvents:         len(events),
		ConfidenceThreshold: intent.ConfidenceThreshold,
		EventWindowHours:    intent.TimeWindowHours,
		RawEvents:           events,
		Intent:              intent,
		SnapshotMode:        opts.Snapshot != nil,
	}
	return &Result{
		Agent:         Vision,
		Success:       true,
		OriginalQuery: query,
		Vision:        report,
	}, nil
}

type rawIntent struct {
	TimeWindowHours     any `json:"timeWindowHours"`
	ConfidenceThreshold any `json:"confidenceThreshold"`
	EventTypes          any `json:"eventTypes"`
	Severity            any `json:"severity"`
}

// ExtractIntent parses the query into event filters. Model output is
// clamped into range; anything unusable falls back to keyword matching.
func (a *VisionAgent) ExtractIntent(ctx context.Context, query string) VisionIntent {
	fallback := a.KeywordIntent(query)

	return llm.Extract(ctx, a.llm, llm.Prompt{
		System:      prompts.GetVisionIntentPrompt(EventTypes, Severities),
		User:        query,
		Temperature: 0.1,
		MaxTokens:   180,
	}, func(text string) (VisionIntent, error) {
		var raw rawIntent
		if err := llm.ParseJSON(llm.StripCodeFences(text), &raw); err != nil {
			return VisionIntent{}, err
		}
		return VisionIntent{
			TimeWindowHours:     int(math.Round(clampNumber(raw.TimeWindowHours, 1, maxVisionWindow, float64(fallback.TimeWindowHours)))),
			ConfidenceThreshold: clampNumber(raw.ConfidenceThreshold, 0, 1, fallback.ConfidenceThreshold),
			EventTypes:          vocabulary(raw.EventTypes, EventTypes, fallback.EventTypes),
			Severity:            vocabulary(raw.Severity, Severities, fallback.Severity),
		}, nil
	}, func() VisionIntent {
		a.logger.Debug("vision intent falling back to keywords")
		return fallback
	})
}

// KeywordIntent derives filters from plain keywords.
func (a *VisionAgent) KeywordIntent(query string) VisionIntent {
	q := strings.ToLower(query)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(q, w) {
				return true
			}
		}
		return false
	}

	types := []string{}
	add := func(t ...string) {
		for _, v := range t {
			if !contains(types, v) {
				types = append(types, v)
			}
		}
	}
	if has("motion", "activity", "movement") {
		add("low_activity")
	}
	if has("isolation", "alone") {
		add("isolation_detected")
	}
	if has("posture") {
		add("abnormal_posture")
	}
	if has("fur", "hair") {
		add("fur_loss_pattern")
	}
	if has("nest", "kit") {
		add("nest_risk", "kit_outside_nest")
	}
	if has("aggression", "fight") {
		add("aggression_detected")
	}
	if has("overcrowd", "density") {
		add("overcrowding_detected")
	}
	if has("feeder", "feed") {
		add("no_feeder_approach")
	}

	severity := []string{}
	if has("critical") {
		severity = append(severity, "critical")
	}
	if has("high") {
		severity = append(severity, "high")
	}

	window := defaultVisionWindow
	switch {
	case has("last month", "30 days", "month"):
		window = maxVisionWindow
	case has("last 7 days", "this week", "week"):
		window = 24 * 7
	}

	return VisionIntent{
		TimeWindowHours:     window,
		ConfidenceThreshold: a.confidence,
		EventTypes:          types,
		Severity:            severity,
	}
}

func (a *VisionAgent) fetchEvents(ctx context.Context, intent VisionIntent, limit int) ([]store.Row, error) {
	if a.events == nil {
		return nil, errors.New("Vision events query failed: no event store configured")
	}
	if limit <= 0 {
		limit = a.limit
	}
	since := a.now().Add(-time.Duration(intent.TimeWindowHours) * time.Hour).UTC().Format(time.RFC3339)

	q := store.SelectQuery{
		Table:   "vision_events",
		Columns: eventColumns,
		OrderBy: "event_time",
		Desc:    true,
		Limit:   limit,
	}.Where("event_time", store.OpGte, since).
		Where("confidence", store.OpGte, intent.ConfidenceThreshold)
	if len(intent.EventTypes) > 0 {
		q = q.Where("event_type", store.OpIn, intent.EventTypes)
	}
	if len(intent.Severity) > 0 {
		q = q.Where("severity", store.OpIn, intent.Severity)
	}

	rows, err := a.events.Select(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("Vision events query failed: %w", err)
	}
	return rows, nil
}

// filterByIntent applies the type and severity filters to snapshot rows.
func filterByIntent(rows []store.Row, intent VisionIntent) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		if len(intent.EventTypes) > 0 && !contains(intent.EventTypes, text(r, "event_type")) {
			continue
		}
		if len(intent.Severity) > 0 && !contains(intent.Severity, text(r, "severity")) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func aboveConfidence(rows []store.Row, threshold float64) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		if c, _ := number(r["confidence"]); c < threshold {
			continue
		}
		out = append(out, r)
	}
	return out
}

// BuildMetrics counts events per type and per severity.
func BuildMetrics(events []store.Row) VisionMetrics {
	m := VisionMetrics{
		TotalEvents: len(events),
		ByType:      map[string]int{},
		BySeverity:  map[string]int{},
	}
	for _, s := range Severities {
		m.BySeverity[s] = 0
	}
	for _, e := range events {
		m.ByType[text(e, "event_type")]++
		m.BySeverity[text(e, "severity")]++
	}
	return m
}

// BuildAlerts returns the newest events with a handling recommendation.
func BuildAlerts(events []store.Row) []VisionAlert {
	n := min(len(events), maxVisionAlerts)
	alerts := make([]VisionAlert, n)
	for i, e := range events[:n] {
		conf, _ := number(e["confidence"])
		eventType := text(e, "event_type")
		severity := text(e, "severity")
		alerts[i] = VisionAlert{
			ID:             e["id"],
			EventType:      eventType,
			Severity:       severity,
			Confidence:     conf,
			RabbitID:       e["rabbit_id"],
			CageID:         e["cage_id"],
			EventTime:      e["event_time"],
			Recommendation: Recommendation(eventType, severity),
		}
	}
	return alerts
}

// Recommendation is the canned action for an event.
func Recommendation(eventType, severity string) string {
	rec, ok := eventRecommendations[eventType]
	if !ok {
		rec = defaultEventRecommendation
	}
	if severity == "critical" {
		return "Critical priority: " + rec
	}
	return rec
}

// BuildSummary names the three most frequent event types.
func BuildSummary(events []store.Row, m VisionMetrics, intent VisionIntent, query string) string {
	threshold := strconv.FormatFloat(intent.ConfidenceThreshold, 'f', -1, 64)
	if len(events) == 0 {
		return fmt.Sprintf("No vision alerts matched this query in the last %d hour(s) at confidence >= %s.",
			intent.TimeWindowHours, threshold)
	}

	types := make([]string, 0, len(m.ByType))
	for t := range m.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if m.ByType[types[i]] != m.ByType[types[j]] {
			return m.ByType[types[i]] > m.ByType[types[j]]
		}
		return types[i] < types[j]
	})
	if len(types) > 3 {
		types = types[:3]
	}

	top := make([]string, len(types))
	for i, t := range types {
		top[i] = fmt.Sprintf("%s (%d)", strings.ReplaceAll(t, "_", " "), m.ByType[t])
	}
	return fmt.Sprintf("Detected %d vision event(s) in the last %d hour(s) for \"%s\". Top signals: %s.",
		len(events), intent.TimeWindowHours, query, strings.Join(top, ", "))
}

func clampNumber(v any, lo, hi, fallback float64) float64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return math.Min(hi, math.Max(lo, f))
}

// vocabulary keeps the known strings of a JSON array, or returns fallback
// when v is not an array.
func vocabulary(v any, known, fallback []string) []string {
	list, ok := v.([]any)
	if !ok {
		return fallback
	}
	out := []string{}
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if contains(known, s) && !contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func number(v any) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
