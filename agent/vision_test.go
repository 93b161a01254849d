package agent_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/agent"
	"rabbitry/llm/llmtest"
	"rabbitry/store"
)

var _ = Describe("VisionAgent", func() {
	var (
		ctx    context.Context
		llm    *llmtest.Scripted
		events *store.MemoryTabular
		a      *agent.VisionAgent
		now    = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		ctx = context.Background()
		llm = llmtest.New()
		events = store.NewMemoryTabular()
		store.SeedMemory(events, now)
		a = agent.NewVisionAgent(agent.VisionOptions{
			LLM:    llm,
			Events: events,
			Now:    func() time.Time { return now },
		})
	})

	It("summarises recent events above the confidence threshold", func() {
		res, err := a.ProcessQuery(ctx, "any camera alerts today?", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.Agent).To(Equal("vision"))

		v := res.Vision
		Expect(v.TotalEvents).To(Equal(3))
		Expect(v.EventWindowHours).To(Equal(24))
		Expect(v.ConfidenceThreshold).To(Equal(0.75))
		Expect(v.Summary).To(Equal(`Detected 3 vision event(s) in the last 24 hour(s) for "any camera alerts today?". ` +
			`Top signals: kit outside nest (1), low activity (1), nest risk (1).`))
		Expect(v.Metrics.BySeverity).To(Equal(map[string]int{"low": 0, "medium": 1, "high": 1, "critical": 1}))

		Expect(v.Alerts).To(HaveLen(3))
		Expect(v.Alerts[0].EventType).To(Equal("nest_risk"))
		Expect(v.Alerts[0].Recommendation).To(Equal("Check nest box condition and maternal behavior now."))
		Expect(v.Alerts[2].Recommendation).To(Equal("Critical priority: Return kits to nest and verify nest warmth immediately."))
	})

	It("clamps the model's intent", func() {
		llm.On(visionPrompt, "```json\n"+`{"timeWindowHours": 2000, "confidenceThreshold": 0.5, "eventTypes": ["low_activity", "bogus"], "severity": "high"}`+"\n```")

		res, _ := a.ProcessQuery(ctx, "how active are they", agent.Options{})
		intent := res.Vision.Intent
		Expect(intent.TimeWindowHours).To(Equal(720))
		Expect(intent.ConfidenceThreshold).To(Equal(0.5))
		Expect(intent.EventTypes).To(Equal([]string{"low_activity"}))
		Expect(intent.Severity).To(BeEmpty())
		Expect(res.Vision.TotalEvents).To(Equal(2))

		call := llm.Calls()[0]
		Expect(call.Temperature).To(Equal(0.1))
		Expect(call.MaxTokens).To(Equal(180))
		Expect(call.System).To(ContainSubstring("low_activity,isolation_detected,"))
	})

	It("falls back to keywords when the reply is not an object", func() {
		llm.On(visionPrompt, `["nest_risk"]`)
		intent := a.ExtractIntent(ctx, "fights this week")
		Expect(intent).To(Equal(agent.VisionIntent{
			TimeWindowHours:     168,
			ConfidenceThreshold: 0.75,
			EventTypes:          []string{"aggression_detected"},
			Severity:            []string{},
		}))

		res, _ := a.ProcessQuery(ctx, "fights this week", agent.Options{})
		Expect(res.Vision.Summary).To(HaveSuffix("Top signals: aggression detected (1)."))
	})

	DescribeTable("keyword intent",
		func(query string, window int, types, severity []string) {
			intent := a.KeywordIntent(query)
			Expect(intent.TimeWindowHours).To(Equal(window))
			Expect(intent.EventTypes).To(Equal(types))
			Expect(intent.Severity).To(Equal(severity))
		},
		Entry("defaults", "status", 24, []string{}, []string{}),
		Entry("nest and kits", "kits near the nest", 24, []string{"nest_risk", "kit_outside_nest"}, []string{}),
		Entry("severity", "critical or high fur loss", 24, []string{"fur_loss_pattern"}, []string{"critical", "high"}),
		Entry("month", "feeder issues in the last month", 720, []string{"no_feeder_approach"}, []string{}),
	)

	It("explains when nothing matched", func() {
		res, _ := a.ProcessQuery(ctx, "posture issues", agent.Options{})
		Expect(res.Vision.TotalEvents).To(Equal(0))
		Expect(res.Vision.Alerts).To(BeEmpty())
		Expect(res.Vision.Summary).To(Equal("No vision alerts matched this query in the last 24 hour(s) at confidence >= 0.75."))
	})

	It("honours the row limit", func() {
		res, _ := a.ProcessQuery(ctx, "alerts", agent.Options{Limit: 1})
		Expect(res.Vision.TotalEvents).To(Equal(1))
		Expect(res.Vision.RawEvents[0]["event_type"]).To(Equal("nest_risk"))
	})

	It("reports event store failures", func() {
		broken := agent.NewVisionAgent(agent.VisionOptions{Events: store.NewMemoryTabular()})
		res, err := broken.ProcessQuery(ctx, "alerts", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal(`Vision events query failed: relation "vision_events" does not exist`))
	})

	It("analyses snapshot rows without the store", func() {
		snap := agent.NewVisionAgent(agent.VisionOptions{})
		res, _ := snap.ProcessQuery(ctx, "overcrowding", agent.Options{Snapshot: []store.Row{
			{"id": "s1", "event_type": "overcrowding_detected", "severity": "medium", "confidence": 0.9},
			{"id": "s2", "event_type": "low_activity", "severity": "low", "confidence": 0.95},
			{"id": "s3", "event_type": "overcrowding_detected", "severity": "high", "confidence": 0.4},
		}})
		Expect(res.Success).To(BeTrue())
		Expect(res.Vision.SnapshotMode).To(BeTrue())
		Expect(res.Vision.TotalEvents).To(Equal(1))
		Expect(res.Vision.Alerts[0].ID).To(Equal("s1"))
	})
})
