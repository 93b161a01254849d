package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/config"
)

var _ = Describe("Config Loading", func() {

	Describe("Load", func() {
		It("routes to LoadFile for a file path", func() {
			_, f := writeFixture("vars.hcl", `variable "x" { default = "val" }`)
			cfg, err := config.Load(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
			Expect(cfg.Variables[0].Name).To(Equal("x"))
		})

		It("routes to LoadDir for a directory path", func() {
			dir := writeFixtures(map[string]string{
				"variables.hcl": `variable "a" { default = "1" }`,
				"models.hcl":    baseHCL(),
			})
			cfg, err := config.Load(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(2))
			Expect(cfg.Models).To(HaveLen(1))
		})

		It("returns error for nonexistent path", func() {
			_, err := config.Load("/nonexistent/path/config.hcl")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("LoadDir", func() {
		It("ignores non-.hcl files", func() {
			dir := writeFixtures(map[string]string{
				"config.hcl": `variable "x" { default = "y" }`,
				"readme.txt": `This is not HCL`,
				"data.json":  `{"key": "value"}`,
			})
			cfg, err := config.LoadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Variables).To(HaveLen(1))
		})

		It("returns defaults for a directory with no .hcl files", func() {
			dir := GinkgoT().TempDir()
			err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hello"), 0644)
			Expect(err).NotTo(HaveOccurred())
			cfg, err := config.LoadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Models).To(BeEmpty())
			Expect(cfg.Storage.Backend).To(Equal("memory"))
			Expect(cfg.Farm.DefaultLocation).To(Equal("Denver, CO"))
		})
	})

	Describe("settings blocks", func() {
		It("decodes every settings block", func() {
			hcl := baseHCL() + `
variable "owm_key" { default = "owm-123" }

farm {
  owner_id         = "owner-1"
  default_location = "Boise, ID"
  temperature_unit = "celsius"
}

weather {
  api_key = vars.owm_key
}

storage {
  backend = "sqlite"
  path    = "/tmp/farm.db"
}

sql_agent {
  execution = "builder"
}

vision {
  default_limit        = 20
  confidence_threshold = 0.5
}

server {
  address = ":9090"
}
`
			_, f := writeFixture("config.hcl", hcl)
			cfg, err := config.LoadAndValidate(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Farm.OwnerID).To(Equal("owner-1"))
			Expect(cfg.Farm.DefaultLocation).To(Equal("Boise, ID"))
			Expect(cfg.Farm.TemperatureUnit).To(Equal(config.UnitCelsius))
			Expect(cfg.Weather.APIKey).To(Equal("owm-123"))
			Expect(cfg.Weather.BaseURL).To(Equal("https://api.openweathermap.org"))
			Expect(cfg.Storage.Backend).To(Equal("sqlite"))
			Expect(cfg.Storage.Path).To(Equal("/tmp/farm.db"))
			Expect(cfg.SQLAgent.Execution).To(Equal(config.ExecutionBuilder))
			Expect(cfg.Vision.DefaultLimit).To(Equal(20))
			Expect(cfg.Vision.ConfidenceThreshold).To(Equal(0.5))
			Expect(cfg.Server.Address).To(Equal(":9090"))
		})

		It("fills defaults for missing blocks", func() {
			_, f := writeFixture("config.hcl", baseHCL())
			cfg, err := config.LoadAndValidate(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Farm.TemperatureUnit).To(Equal(config.UnitFahrenheit))
			Expect(cfg.SQLAgent.Execution).To(Equal(config.ExecutionRPC))
			Expect(cfg.Vision.DefaultLimit).To(Equal(50))
			Expect(cfg.Vision.ConfidenceThreshold).To(Equal(0.75))
			Expect(cfg.Server.Address).To(Equal(":8080"))
			Expect(cfg.Storage.RecordHistory()).To(BeTrue())
		})

		It("rejects duplicate settings blocks", func() {
			_, f := writeFixture("config.hcl", baseHCL()+`
farm { owner_id = "a" }
farm { owner_id = "b" }
`)
			_, err := config.LoadFile(f)
			Expect(err).To(MatchError(ContainSubstring("duplicate farm block")))
		})
	})

	Describe("agent blocks", func() {
		It("resolves model references", func() {
			hcl := baseHCL() + `
model "fast" {
  provider = "openai"
  model    = "gpt-4o-mini"
}

agent "weather" {
  model = models.fast
}

agent "vision" {
  enabled = false
}
`
			_, f := writeFixture("config.hcl", hcl)
			cfg, err := config.LoadAndValidate(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ModelFor("weather").Model).To(Equal("gpt-4o-mini"))
			Expect(cfg.ModelFor("sql").Name).To(Equal("default"))
			Expect(cfg.AgentEnabled("vision")).To(BeFalse())
			Expect(cfg.AgentEnabled("pdf")).To(BeTrue())
		})

		It("rejects unknown agents", func() {
			_, f := writeFixture("config.hcl", baseHCL()+`agent "astrology" {}`)
			_, err := config.LoadAndValidate(f)
			Expect(err).To(MatchError(ContainSubstring("unknown agent")))
		})

		It("rejects references to missing models", func() {
			_, f := writeFixture("config.hcl", baseHCL()+`agent "sql" { model = "nope" }`)
			_, err := config.LoadAndValidate(f)
			Expect(err).To(MatchError(ContainSubstring("model 'nope' not found")))
		})
	})

	Describe("Validate", func() {
		DescribeTable("rejects invalid settings",
			func(extra, message string) {
				_, f := writeFixture("config.hcl", baseHCL()+extra)
				_, err := config.LoadAndValidate(f)
				Expect(err).To(MatchError(ContainSubstring(message)))
			},
			Entry("unknown storage backend", `storage { backend = "mongo" }`, "unknown backend"),
			Entry("postgres without dsn", `storage { backend = "postgres" }`, "dsn is required"),
			Entry("bad temperature unit", `farm { temperature_unit = "kelvin" }`, "temperature_unit"),
			Entry("bad execution mode", `sql_agent { execution = "exec" }`, "execution must be"),
			Entry("threshold out of range", `vision { confidence_threshold = 1.5 }`, "confidence_threshold"),
		)

		It("requires a model", func() {
			_, f := writeFixture("config.hcl", minimalVarsHCL())
			_, err := config.LoadAndValidate(f)
			Expect(err).To(MatchError(ContainSubstring("at least one model")))
		})
	})

	Describe("Default", func() {
		It("produces a valid configuration", func() {
			cfg := config.Default()
			Expect(cfg.Validate()).To(Succeed())
			Expect(cfg.DefaultModel().Model).To(Equal("gpt-4"))
		})
	})

	Describe("ResolvedVars", func() {
		It("populates ResolvedVars map from variable defaults", func() {
			_, f := writeFixture("config.hcl", `variable "app_name" { default = "myapp" }`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.ResolvedVars).To(HaveKey("app_name"))
			Expect(cfg.ResolvedVars["app_name"].AsString()).To(Equal("myapp"))
		})

		It("prefers the environment over the default", func() {
			GinkgoT().Setenv("RABBITRY_TEST_LOCATION", "Austin, TX")
			_, f := writeFixture("config.hcl", `
variable "rabbitry_test_location" { default = "Denver, CO" }
farm { default_location = vars.rabbitry_test_location }
`)
			cfg, err := config.LoadFile(f)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Farm.DefaultLocation).To(Equal("Austin, TX"))
		})
	})
})
