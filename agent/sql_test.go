package agent_test

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/agent"
	"rabbitry/config"
	"rabbitry/llm/llmtest"
	"rabbitry/store"
)

var _ = Describe("SQLAgent", func() {
	var (
		ctx  context.Context
		llm  *llmtest.Scripted
		farm *store.MemoryTabular
		now  = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	)

	newAgent := func(execution, owner string) *agent.SQLAgent {
		return agent.NewSQLAgent(agent.SQLOptions{
			LLM:       llm,
			Farm:      farm,
			Execution: execution,
			OwnerID:   owner,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		llm = llmtest.New()
		farm = store.NewMemoryTabular()
		store.SeedMemory(farm, now)
	})

	It("counts rabbits through the builder when raw SQL is unsupported", func() {
		llm.On(sqlPrompt, "SELECT COUNT(*) FROM rabbits WHERE is_deleted = false")
		a := newAgent(config.ExecutionRPC, store.DemoOwner)
		Expect(a.Initialize(ctx)).To(Succeed())

		res, err := a.ProcessQuery(ctx, "How many rabbits do I have?", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeTrue())
		Expect(res.Agent).To(Equal("sql"))
		Expect(res.OriginalQuery).To(Equal("How many rabbits do I have?"))
		Expect(res.Data).To(Equal([]store.Row{{"count": 4}}))
		Expect(res.RowCount).To(Equal(1))
	})

	It("scopes builder reads to the owner", func() {
		llm.On(sqlPrompt, "```sql\nSELECT * FROM rabbits\n```")
		res, err := newAgent(config.ExecutionBuilder, store.DemoOwner).ProcessQuery(ctx, "list rabbits", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Query).To(Equal("SELECT * FROM rabbits"))
		Expect(res.RowCount).To(Equal(4))
		for _, r := range res.Data {
			Expect(r["is_deleted"]).To(BeFalse())
		}
	})

	It("reads every row without an owner", func() {
		llm.On(sqlPrompt, "SELECT * FROM rabbits")
		res, _ := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "list rabbits", agent.Options{})
		Expect(res.RowCount).To(Equal(5))
	})

	It("rejects statements that are not SELECT", func() {
		llm.On(sqlPrompt, "DELETE FROM rabbits")
		res, err := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "remove everything", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal("Only SELECT queries are allowed"))
		Expect(res.Query).To(Equal("DELETE FROM rabbits"))

		rows, _ := farm.Select(ctx, store.SelectQuery{Table: "rabbits"})
		Expect(rows).To(HaveLen(5))
	})

	It("rejects a SELECT followed by another statement", func() {
		llm.On(sqlPrompt, "SELECT 1; DELETE FROM rabbits")
		res, err := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "remove everything", agent.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal("Only SELECT queries are allowed"))

		rows, _ := farm.Select(ctx, store.SelectQuery{Table: "rabbits"})
		Expect(rows).To(HaveLen(5))
	})

	It("passes store errors through verbatim", func() {
		llm.On(sqlPrompt, "SELECT * FROM nonexistent_table")
		res, _ := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "q", agent.Options{})
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal(`relation "nonexistent_table" does not exist`))
	})

	It("reports statements without a table", func() {
		llm.On(sqlPrompt, "SELECT 1")
		res, _ := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "q", agent.Options{})
		Expect(res.Error).To(Equal("Could not determine table name from query"))
	})

	It("converts with patterns when the model fails", func() {
		llm.Fail(sqlPrompt, errors.New("rate limited"))
		res, _ := newAgent(config.ExecutionBuilder, store.DemoOwner).ProcessQuery(ctx, "how many bunnies", agent.Options{})
		Expect(res.Query).To(Equal("SELECT COUNT(*) FROM rabbits"))
		Expect(res.Data).To(Equal([]store.Row{{"count": 4}}))
	})

	It("describes the schema and relationships in the prompt", func() {
		llm.On(sqlPrompt, "SELECT * FROM breeding_plans")
		_, err := newAgent(config.ExecutionBuilder, "").ProcessQuery(ctx, "plans", agent.Options{})
		Expect(err).NotTo(HaveOccurred())

		system := llm.Calls()[0].System
		Expect(system).To(ContainSubstring("breeding_plans: "))
		Expect(system).To(ContainSubstring("expected_kindle_date (unknown, nullable)"))
		Expect(system).To(ContainSubstring("- breeding_plans.doe_id → rabbits.id"))
		Expect(llm.Calls()[0].Temperature).To(Equal(0.1))
		Expect(llm.Calls()[0].MaxTokens).To(Equal(500))
	})

	It("falls back to built-in schema knowledge without a store", func() {
		a := agent.NewSQLAgent(agent.SQLOptions{LLM: llm})
		schema := a.Schema(ctx)
		Expect(schema.Tables).To(HaveKey("breeding_plans"))
		Expect(schema.Relationships).NotTo(BeEmpty())

		res := a.ExecuteQuery(ctx, "SELECT * FROM rabbits")
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal("no data store configured"))
	})

	Context("against SQLite", func() {
		var sq *store.SQLiteTabular

		BeforeEach(func() {
			b, err := store.NewSQLiteBundle(filepath.Join(GinkgoT().TempDir(), "farm.db"))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(b.Close)
			sq = b.Farm.(*store.SQLiteTabular)
			Expect(sq.Seed(ctx, now)).To(Succeed())
		})

		It("executes generated SQL directly", func() {
			llm.On(sqlPrompt, "SELECT name, weight FROM rabbits WHERE is_deleted = 0 ORDER BY weight DESC LIMIT 1")
			a := agent.NewSQLAgent(agent.SQLOptions{LLM: llm, Farm: sq, Dialect: "SQLite"})
			res, err := a.ProcessQuery(ctx, "heaviest rabbit", agent.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Success).To(BeTrue())
			Expect(res.Data).To(HaveLen(1))
			Expect(res.Data[0]).To(HaveKeyWithValue("name", "Thumper"))
			Expect(llm.Calls()[0].System).To(ContainSubstring("SQLite"))
		})

		It("never runs statements chained after a SELECT", func() {
			before, err := sq.Select(ctx, store.SelectQuery{Table: "transactions"})
			Expect(err).NotTo(HaveOccurred())
			Expect(before).NotTo(BeEmpty())

			a := agent.NewSQLAgent(agent.SQLOptions{LLM: llm, Farm: sq, Dialect: "SQLite"})
			res := a.ExecuteQuery(ctx, "SELECT 1; DELETE FROM transactions")
			Expect(res.Success).To(BeFalse())
			Expect(res.Error).To(Equal("Only SELECT queries are allowed"))

			after, err := sq.Select(ctx, store.SelectQuery{Table: "transactions"})
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(HaveLen(len(before)))
		})

		It("accepts one trailing semicolon", func() {
			a := agent.NewSQLAgent(agent.SQLOptions{LLM: llm, Farm: sq, Dialect: "SQLite"})
			res := a.ExecuteQuery(ctx, "SELECT name FROM rabbits WHERE is_deleted = 0;")
			Expect(res.Success).To(BeTrue())
			Expect(res.RowCount).To(Equal(4))
		})

		It("reads columns table by table", func() {
			a := agent.NewSQLAgent(agent.SQLOptions{Farm: sq})
			schema := a.Schema(ctx)
			Expect(schema.Tables).To(HaveKey("rabbits"))
			Expect(schema.Relationships).To(ContainElement(store.Relationship{
				FromTable: "breeding_plans", FromColumn: "buck_id", ToTable: "rabbits", ToColumn: "id",
			}))
		})

		It("does not keep a schema read under a cancelled context", func() {
			a := agent.NewSQLAgent(agent.SQLOptions{Farm: sq})
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			partial := a.Schema(cancelled)
			Expect(partial.Tables).NotTo(HaveKey("rabbits"))

			Expect(a.Schema(ctx).Tables).To(HaveKey("rabbits"))
		})
	})
})

var _ = Describe("SQL helpers", func() {
	DescribeTable("ConvertWithPatterns",
		func(question, want string) {
			Expect(agent.ConvertWithPatterns(question)).To(Equal(want))
		},
		Entry("list", "Show me all rabbits", "SELECT * FROM rabbits"),
		Entry("breeding", "list breeding plans", "SELECT * FROM breeding_plans"),
		Entry("count", "how many transactions last month", "SELECT COUNT(*) FROM transactions"),
		Entry("table name", "weight records please", "SELECT * FROM weight_records"),
		Entry("default", "anything interesting?", "SELECT * FROM rabbits"),
	)

	DescribeTable("ExtractTableName",
		func(statement, want string) {
			Expect(agent.ExtractTableName(statement)).To(Equal(want))
		},
		Entry("from clause", "select * from Breeding_Plans where x = 1", "breeding_plans"),
		Entry("known table", "WITH x AS (SELECT 1) SELECT rabbits", "rabbits"),
		Entry("none", "SELECT 1", ""),
	)

	It("accepts only SELECT statements", func() {
		Expect(agent.IsSelect("  select 1")).To(BeTrue())
		Expect(agent.IsSelect("UPDATE rabbits SET name = 'x'")).To(BeFalse())
		Expect(agent.IsSelect("SELECT * FROM rabbits;")).To(BeTrue())
		Expect(agent.IsSelect("SELECT 1; DELETE FROM transactions")).To(BeFalse())
		Expect(agent.IsSelect("SELECT 1;;")).To(BeFalse())
	})
})
