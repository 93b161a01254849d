package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/store"
)

var _ = Describe("HistoryStore", func() {
	for _, f := range bundleFactories() {
		f := f
		Context(f.name, func() {
			var (
				bundle  *store.Bundle
				cleanup func()
				ctx     context.Context
			)

			BeforeEach(func() {
				ctx = context.Background()
				bundle, cleanup = f.open()
			})

			AfterEach(func() {
				cleanup()
			})

			It("returns an empty list when nothing was recorded", func() {
				queries, err := bundle.History.ListQueries(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(queries).To(BeEmpty())
			})

			It("records a query with its agent results", func() {
				Expect(bundle.History.CreateQuery(ctx, "q-1", "show me my rabbits", []string{"sql", "weather"})).To(Succeed())
				Expect(bundle.History.RecordAgentResult(ctx, "q-1", store.AgentRecord{
					Agent: "sql", Success: true, PayloadJSON: `{"rowCount":2}`,
				})).To(Succeed())
				Expect(bundle.History.RecordAgentResult(ctx, "q-1", store.AgentRecord{
					Agent: "weather", Success: false, Error: "geocoding failed",
				})).To(Succeed())
				Expect(bundle.History.CompleteQuery(ctx, "q-1", true, "Found 2 rabbits")).To(Succeed())

				q, err := bundle.History.GetQuery(ctx, "q-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(q.Query).To(Equal("show me my rabbits"))
				Expect(q.Agents).To(Equal([]string{"sql", "weather"}))
				Expect(q.Status).To(Equal(store.StatusCompleted))
				Expect(q.Summary).To(Equal("Found 2 rabbits"))
				Expect(q.FinishedAt).NotTo(BeNil())

				Expect(q.Results).To(HaveLen(2))
				Expect(q.Results[0].Agent).To(Equal("sql"))
				Expect(q.Results[0].Success).To(BeTrue())
				Expect(q.Results[0].PayloadJSON).To(Equal(`{"rowCount":2}`))
				Expect(q.Results[1].Error).To(Equal("geocoding failed"))
			})

			It("marks unsuccessful queries as failed", func() {
				Expect(bundle.History.CreateQuery(ctx, "q-2", "weather?", []string{"weather"})).To(Succeed())
				Expect(bundle.History.CompleteQuery(ctx, "q-2", false, "")).To(Succeed())

				q, err := bundle.History.GetQuery(ctx, "q-2")
				Expect(err).NotTo(HaveOccurred())
				Expect(q.Status).To(Equal(store.StatusFailed))
			})

			It("lists the most recent queries first", func() {
				for _, id := range []string{"a", "b", "c"} {
					Expect(bundle.History.CreateQuery(ctx, id, "query "+id, []string{"sql"})).To(Succeed())
					time.Sleep(10 * time.Millisecond) // ensure different timestamps
				}

				queries, err := bundle.History.ListQueries(ctx, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(queries).To(HaveLen(2))
				Expect(queries[0].ID).To(Equal("c"))
				Expect(queries[1].ID).To(Equal("b"))
			})

			It("reports unknown queries as not found", func() {
				_, err := bundle.History.GetQuery(ctx, "missing")
				Expect(err).To(MatchError(store.ErrNotFound))

				err = bundle.History.CompleteQuery(ctx, "missing", true, "")
				Expect(err).To(MatchError(ContainSubstring("not found")))
			})
		})
	}
})
