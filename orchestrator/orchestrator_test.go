package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/agent"
	"rabbitry/config"
	"rabbitry/llm/llmtest"
	"rabbitry/orchestrator"
	"rabbitry/store"
)

var _ = Describe("Orchestrator", func() {
	var (
		ctx     context.Context
		llm     *llmtest.Scripted
		farm    *store.MemoryTabular
		history *store.MemoryHistory
		o       *orchestrator.Orchestrator
		now     = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	)

	BeforeEach(func() {
		ctx = context.Background()
		llm = llmtest.New()
		farm = store.NewMemoryTabular()
		store.SeedMemory(farm, now)
		history = store.NewMemoryHistory()
		o = orchestrator.New(orchestrator.Options{
			LLM:     llm,
			Farm:    farm,
			History: history,
			OwnerID: store.DemoOwner,
			Now:     func() time.Time { return now },
		})
	})

	Describe("registration", func() {
		It("keeps registration order and replaces by name", func() {
			o.RegisterAgent(succeeding("sql", agent.Result{}))
			o.RegisterAgent(succeeding("weather", agent.Result{}))
			o.RegisterAgent(succeeding("sql", agent.Result{}))
			Expect(o.Agents()).To(Equal([]string{"sql", "weather"}))
		})
	})

	Describe("Initialize", func() {
		It("initializes every agent", func() {
			a, b := succeeding("sql", agent.Result{}), succeeding("pdf", agent.Result{})
			o.RegisterAgent(a)
			o.RegisterAgent(b)
			Expect(o.Initialize(ctx)).To(Succeed())
			Expect(a.inits).To(Equal(1))
			Expect(b.inits).To(Equal(1))
		})

		It("returns the first initialization failure", func() {
			bad := succeeding("pdf", agent.Result{})
			bad.initErr = errors.New("manual missing")
			o.RegisterAgent(succeeding("sql", agent.Result{}))
			o.RegisterAgent(bad)

			err := o.Initialize(ctx)
			Expect(err).To(MatchError(ContainSubstring("initialize pdf agent: manual missing")))
		})

		It("fails when preferences cannot be read", func() {
			broken := orchestrator.New(orchestrator.Options{LLM: llm, Farm: store.NewMemoryTabular(), OwnerID: "someone"})
			broken.RegisterAgent(succeeding("sql", agent.Result{}))
			Expect(broken.Initialize(ctx)).To(MatchError(ContainSubstring("load preferences")))
		})

		It("rebuilds preference-aware agents with stored settings", func() {
			farm.Insert("user_preferences", store.Row{"user_id": "owner-2", "farm_location": "Boulder, CO", "temperature_unit": "celsius"})
			tuned := orchestrator.New(orchestrator.Options{LLM: llm, Farm: farm, OwnerID: "owner-2"})
			tuned.RegisterAgent(agent.NewWeatherAgent(agent.WeatherOptions{LLM: llm, DefaultLocation: "Denver, CO", TemperatureUnit: config.UnitFahrenheit}))
			Expect(tuned.Initialize(ctx)).To(Succeed())

			llm.On(routerPrompt, `["weather"]`).On(locationPrompt, "DEFAULT")
			resp := tuned.Query(ctx, "what's the weather?")
			Expect(resp.Success).To(BeTrue())
			Expect(resp.Weather.Location).To(Equal("Boulder, CO (Mock Data)"))
			Expect(resp.Weather.TemperatureUnit).To(Equal("°C"))
		})

		It("keeps defaults when the owner has no preferences", func() {
			o2 := orchestrator.New(orchestrator.Options{LLM: llm, Farm: farm, OwnerID: "nobody"})
			o2.RegisterAgent(agent.NewWeatherAgent(agent.WeatherOptions{LLM: llm, DefaultLocation: "Denver, CO"}))
			Expect(o2.Initialize(ctx)).To(Succeed())
		})
	})

	Describe("agent isolation", func() {
		It("returns a result for every agent when some fail", func() {
			o.RegisterAgent(failing("sql", "connection reset"))
			o.RegisterAgent(newStub("pdf", func(string, agent.Options) (*agent.Result, error) {
				panic("nil manual")
			}))
			o.RegisterAgent(succeeding("weather", agent.Result{Location: "Denver, CO"}))
			llm.On(routerPrompt, `["sql", "pdf", "weather"]`)

			resp, state := o.QueryWithState(ctx, "everything please")
			Expect(state.Results).To(HaveLen(3))
			Expect(state.Results["sql"].Success).To(BeFalse())
			Expect(state.Results["sql"].Agent).To(Equal("sql"))
			Expect(state.Results["sql"].Error).To(Equal("connection reset"))
			Expect(state.Results["pdf"].Success).To(BeFalse())
			Expect(state.Results["pdf"].Agent).To(Equal("pdf"))
			Expect(state.Results["pdf"].Error).To(Equal("nil manual"))
			Expect(state.Results["weather"].Success).To(BeTrue())

			Expect(resp.Success).To(BeTrue())
			Expect(resp.Warnings).To(ConsistOf(
				"sql agent failed: connection reset",
				"pdf agent failed: nil manual",
			))
		})

		It("stamps the agent name onto results", func() {
			o.RegisterAgent(succeeding("pdf", agent.Result{Agent: "something-else", Answer: "a"}))
			llm.On(routerPrompt, `["pdf"]`)
			_, state := o.QueryWithState(ctx, "q")
			Expect(state.Results["pdf"].Agent).To(Equal("pdf"))
		})

		It("skips selected agents that are not registered", func() {
			router := agent.NewRouter(llm, nil)
			router.RegisterAgent("pdf", "documents")
			lonely := orchestrator.New(orchestrator.Options{LLM: llm, Router: router})
			lonely.RegisterAgent(succeeding("sql", agent.Result{Data: []store.Row{{"id": "1"}}, RowCount: 1}))
			llm.On(routerPrompt, `["pdf", "sql"]`)

			resp, state := lonely.QueryWithState(ctx, "q")
			Expect(state.Results).To(HaveKey("sql"))
			Expect(state.Results).NotTo(HaveKey("pdf"))
			Expect(resp.Success).To(BeTrue())
		})
	})

	It("reports when every agent failed", func() {
		o.RegisterAgent(failing("sql", "boom"))
		llm.On(routerPrompt, `["sql"]`)

		resp := o.Query(ctx, "q")
		Expect(resp.Success).To(BeFalse())
		Expect(resp.FailedAgents).To(Equal([]orchestrator.FailedAgent{{Agent: "sql", Error: "boom"}}))
		Expect(resp.Data).To(BeNil())
	})

	It("counts rabbits end to end", func() {
		o.RegisterAgent(agent.NewSQLAgent(agent.SQLOptions{LLM: llm, Farm: farm, OwnerID: store.DemoOwner}))
		o.RegisterAgent(agent.NewWeatherAgent(agent.WeatherOptions{LLM: llm}))
		Expect(o.Initialize(ctx)).To(Succeed())
		llm.On(routerPrompt, `["sql"]`).On(sqlPrompt, "SELECT COUNT(*) FROM rabbits")

		resp := o.Query(ctx, "How many rabbits do we have?")
		Expect(resp.Success).To(BeTrue())
		Expect(resp.AgentsUsed).To(Equal([]string{"sql"}))
		Expect(resp.Data).To(HaveLen(1))
		Expect(resp.Data[0]["count"].Display).To(Equal("4"))
		Expect(resp.Weather).To(BeNil())
		Expect(resp.Answer).To(BeEmpty())
		Expect(resp.CombinedSummary).To(ContainSubstring("Found 1 database record"))
	})

	Describe("sql then weather", func() {
		var (
			sql, weather *stubAgent
			query        = "Which does kindle next month and what's the temperature then?"
		)

		BeforeEach(func() {
			sql = succeeding("sql", agent.Result{
				Data: []store.Row{
					{"id": "8b2e4f6a-1c3d", "expected_kindle_date": "2026-04-05", "status": "Planned"},
					{"id": "8b2e4f6a-9f9f", "expected_kindle_date": "2026-04-12", "status": "Planned"},
				},
				RowCount: 2,
			})
			weather = succeeding("weather", agent.Result{
				Location: "Denver, CO",
				Weather: &agent.WeatherData{
					Current: agent.CurrentWeather{Temperature: 55, Description: "clear sky", TemperatureUnit: "°F"},
				},
				DateForecasts: []agent.DateForecast{
					{Date: "2026-04-05", Success: true, Temperature: 48, Description: "light rain", TemperatureUnit: "°F"},
				},
			})
			o.RegisterAgent(weather)
			o.RegisterAgent(sql)
		})

		It("runs sql first and merges forecasts into every row", func() {
			llm.On(routerPrompt, `["weather", "sql"]`)

			resp, state := o.QueryWithState(ctx, query)
			Expect(state.Order).To(Equal([]string{"sql", "weather"}))
			Expect(resp.Success).To(BeTrue())
			Expect(resp.Weather).To(BeNil())

			Expect(resp.Data).To(HaveLen(2))
			Expect(resp.Data[0]["weather_forecast"].Display).To(Equal("48°F (light rain)"))
			Expect(resp.Data[1]["weather_forecast"].Display).To(Equal("55°F (clear sky) - Current"))
			Expect(resp.DisplayColumns).To(ContainElement(orchestrator.Column{
				Key: "weather_forecast", Label: "Weather Forecast", Sortable: false, Width: "wide",
			}))
		})

		It("anchors the weather query to the extracted dates", func() {
			llm.On(routerPrompt, `["sql", "weather"]`).
				OnUser(decomposePrompt, "Agent: sql", "Which does kindle next month?")

			o.Query(ctx, query)
			Expect(sql.lastQuery()).To(Equal("Which does kindle next month?"))
			Expect(weather.lastQuery()).To(Equal(
				"Weather forecast for these specific dates: April 5, 2026, April 12, 2026. Context: " + query))
			Expect(weather.lastOptions().Dates).To(Equal([]time.Time{
				time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC),
				time.Date(2026, 4, 12, 0, 0, 0, 0, time.UTC),
			}))
		})

		It("shows the widget and warns when sql fails", func() {
			o.RegisterAgent(newStub("sql", func(q string, _ agent.Options) (*agent.Result, error) {
				return &agent.Result{Success: false, Error: "relation does not exist", OriginalQuery: q}, nil
			}))
			llm.On(routerPrompt, `["sql", "weather"]`)

			resp, state := o.QueryWithState(ctx, query)
			Expect(state.Results["sql"].Agent).To(Equal("sql"))
			Expect(state.Results["sql"].Error).To(Equal("relation does not exist"))
			Expect(weather.lastQuery()).To(Equal(query))
			Expect(weather.lastOptions().Dates).To(BeEmpty())

			Expect(resp.Success).To(BeTrue())
			Expect(resp.Weather).NotTo(BeNil())
			Expect(resp.Warnings).To(Equal([]string{"sql agent failed: relation does not exist"}))
		})
	})

	DescribeTable("ExecutionOrder",
		func(selected, want []string) {
			Expect(orchestrator.ExecutionOrder(selected)).To(Equal(want))
		},
		Entry("weather after sql", []string{"weather", "sql"}, []string{"sql", "weather"}),
		Entry("stable", []string{"pdf", "weather", "vision"}, []string{"pdf", "vision", "weather"}),
		Entry("single", []string{"weather"}, []string{"weather"}),
	)

	It("decomposes queries for the first agent", func() {
		pdf := succeeding("pdf", agent.Result{Answer: "a"})
		o.RegisterAgent(pdf)
		llm.On(routerPrompt, `["pdf"]`).On(decomposePrompt, "  optimal housing  ")

		o.Query(ctx, "How many rabbits and what about optimal housing?")
		Expect(pdf.lastQuery()).To(Equal("optimal housing"))
	})

	It("decomposes the query for weather when sql was not selected", func() {
		pdf := succeeding("pdf", agent.Result{Answer: "Keep hutches shaded above 80°F."})
		weather := succeeding("weather", agent.Result{Location: "Denver, CO"})
		o.RegisterAgent(pdf)
		o.RegisterAgent(weather)
		llm.On(routerPrompt, `["pdf", "weather"]`).
			OnUser(decomposePrompt, "Agent: pdf", "heat stress guidance").
			OnUser(decomposePrompt, "Agent: weather", "forecast for Denver this week")

		_, state := o.QueryWithState(ctx, "What does the manual say about heat, and how hot will Denver get this week?")
		Expect(state.Order).To(Equal([]string{"pdf", "weather"}))
		Expect(pdf.lastQuery()).To(Equal("heat stress guidance"))
		Expect(weather.lastQuery()).To(Equal("forecast for Denver this week"))
	})

	It("falls back to sql when routing fails", func() {
		sql := succeeding("sql", agent.Result{Data: []store.Row{{"id": "1"}}, RowCount: 1})
		o.RegisterAgent(sql)
		o.RegisterAgent(succeeding("pdf", agent.Result{}))
		llm.Fail(routerPrompt, errors.New("timeout"))

		resp := o.Query(ctx, "q")
		Expect(resp.AgentsUsed).To(Equal([]string{"sql"}))
	})

	It("fails fast on a cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		resp := o.Query(cancelled, "q")
		Expect(resp.Success).To(BeFalse())
		Expect(resp.Agent).To(Equal("orchestrator"))
		Expect(resp.Error).To(Equal("context canceled"))
	})

	Describe("history and events", func() {
		It("records the query and each agent outcome", func() {
			o.RegisterAgent(succeeding("sql", agent.Result{Data: []store.Row{{"id": "1"}}, RowCount: 1}))
			o.RegisterAgent(failing("pdf", "no manual"))
			llm.On(routerPrompt, `["sql", "pdf"]`)

			resp := o.Query(ctx, "rabbits and manuals")
			Expect(resp.QueryID).NotTo(BeEmpty())

			rec, err := history.GetQuery(ctx, resp.QueryID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Query).To(Equal("rabbits and manuals"))
			Expect(rec.Agents).To(Equal([]string{"sql", "pdf"}))
			Expect(rec.Status).To(Equal(store.StatusCompleted))
			Expect(rec.Summary).To(Equal(resp.CombinedSummary))
			Expect(rec.Results).To(HaveLen(2))
			Expect(rec.Results[0].Agent).To(Equal("sql"))
			Expect(rec.Results[0].PayloadJSON).To(ContainSubstring(`"rowCount":1`))
			Expect(rec.Results[1].Success).To(BeFalse())
			Expect(rec.Results[1].Error).To(Equal("no manual"))
		})

		It("emits pipeline events tagged with the query id", func() {
			var (
				mu    sync.Mutex
				types []string
				ids   = map[any]bool{}
			)
			sink := orchestrator.EventFunc(func(eventType string, data map[string]any) {
				mu.Lock()
				defer mu.Unlock()
				types = append(types, eventType)
				ids[data["query_id"]] = true
			})
			evented := orchestrator.New(orchestrator.Options{LLM: llm, Events: sink})
			evented.RegisterAgent(succeeding("sql", agent.Result{}))
			llm.On(routerPrompt, `["sql"]`)

			resp := evented.Query(ctx, "q")
			Expect(types).To(Equal([]string{
				orchestrator.EventQueryStarted,
				orchestrator.EventAgentsSelected,
				orchestrator.EventAgentStarted,
				orchestrator.EventAgentCompleted,
				orchestrator.EventQueryCompleted,
			}))
			Expect(ids).To(Equal(map[any]bool{resp.QueryID: true}))
		})

		It("lets event data override context fields", func() {
			var got map[string]any
			l := orchestrator.WithFields(orchestrator.EventFunc(func(_ string, data map[string]any) { got = data }),
				map[string]any{"query_id": "q1", "agent": "none"})
			l.LogEvent("x", map[string]any{"agent": "sql"})
			Expect(got).To(Equal(map[string]any{"query_id": "q1", "agent": "sql"}))
		})
	})

	Describe("QuickInsights", func() {
		It("needs a sql agent", func() {
			_, err := o.QuickInsights(ctx)
			Expect(err).To(HaveOccurred())
		})

		It("answers the canned questions", func() {
			o.RegisterAgent(agent.NewSQLAgent(agent.SQLOptions{LLM: llm, Farm: farm, OwnerID: store.DemoOwner}))
			llm.OnUser(sqlPrompt, "How many rabbits", "SELECT COUNT(*) FROM rabbits").
				OnUser(sqlPrompt, "breeding program", "SELECT * FROM rabbits").
				OnUser(sqlPrompt, "Total transactions", "SELECT * FROM nonexistent_table")

			insights, err := o.QuickInsights(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(insights).To(Equal([]orchestrator.Insight{
				{Label: "Total Rabbits", Value: 4},
				{Label: "Active rabbits", Value: 4},
			}))
		})
	})
})
