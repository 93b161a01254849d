package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/config"
)

var _ = Describe("VarStore", func() {
	var vs *config.VarStore

	BeforeEach(func() {
		vs = &config.VarStore{Path: filepath.Join(GinkgoT().TempDir(), "nested", "vars.txt")}
	})

	It("treats a missing file as empty", func() {
		vars, err := vs.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(vars).To(BeEmpty())
	})

	It("stores values sorted and owner-readable", func() {
		Expect(vs.Set("weather_api_key", "owm-1")).To(Succeed())
		Expect(vs.Set("database_url", "postgres://farm@localhost/rabbitry?sslmode=disable")).To(Succeed())

		data, err := os.ReadFile(vs.Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("database_url=postgres://farm@localhost/rabbitry?sslmode=disable\nweather_api_key=owm-1\n"))

		info, err := os.Stat(vs.Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))

		Expect(vs.Get("database_url")).To(Equal("postgres://farm@localhost/rabbitry?sslmode=disable"))
	})

	It("skips comments and malformed lines", func() {
		Expect(os.MkdirAll(filepath.Dir(vs.Path), 0o700)).To(Succeed())
		Expect(os.WriteFile(vs.Path, []byte("# farm keys\nopenai_api_key=sk-a=b\nnot a pair\n\n"), 0o600)).To(Succeed())

		vars, err := vs.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(vars).To(Equal(map[string]string{"openai_api_key": "sk-a=b"}))
	})

	It("reports missing variables", func() {
		_, err := vs.Get("anthropic_api_key")
		Expect(err).To(MatchError(config.ErrVarNotFound))

		Expect(vs.Set("anthropic_api_key", "x")).To(Succeed())
		Expect(vs.Delete("anthropic_api_key")).To(Succeed())
		Expect(vs.Delete("anthropic_api_key")).To(MatchError(config.ErrVarNotFound))
	})

	It("refuses names and values that would corrupt the file", func() {
		Expect(vs.Set("a=b", "x")).To(HaveOccurred())
		Expect(vs.Set("farm_note", "line one\nline two")).To(HaveOccurred())
	})

	Describe("Resolve", func() {
		v := &config.Variable{Name: "rabbitry_test_owner", Default: "demo"}

		It("falls back from the file to the environment to the default", func() {
			Expect(vs.Resolve(v)).To(Equal("demo"))

			GinkgoT().Setenv(v.EnvName(), "from-env")
			Expect(vs.Resolve(v)).To(Equal("from-env"))

			Expect(vs.Set(v.Name, "from-file")).To(Succeed())
			Expect(vs.Resolve(v)).To(Equal("from-file"))
		})
	})

	It("honours RABBITRY_VARS_FILE", func() {
		path := filepath.Join(GinkgoT().TempDir(), "custom.txt")
		GinkgoT().Setenv(config.VarsFileEnv, path)
		def, err := config.DefaultVarStore()
		Expect(err).NotTo(HaveOccurred())
		Expect(def.Path).To(Equal(path))
	})
})
