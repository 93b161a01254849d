package llm_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/llm"
	"rabbitry/llm/llmtest"
)

var _ = Describe("Extract", func() {
	parseList := func(text string) ([]string, error) {
		var out []string
		err := llm.ParseJSON(text, &out)
		return out, err
	}
	fallback := func() []string { return []string{"fallback"} }
	prompt := llm.Prompt{System: "classify", User: "q"}

	It("returns the parsed value", func() {
		c := llmtest.New().On("classify", `["sql","weather"]`)
		Expect(llm.Extract(context.Background(), c, prompt, parseList, fallback)).To(Equal([]string{"sql", "weather"}))
	})

	It("falls back when the request fails", func() {
		c := llmtest.New().Fail("classify", errors.New("boom"))
		Expect(llm.Extract(context.Background(), c, prompt, parseList, fallback)).To(Equal([]string{"fallback"}))
	})

	It("falls back when parsing fails", func() {
		c := llmtest.New().On("classify", "no json here")
		Expect(llm.Extract(context.Background(), c, prompt, parseList, fallback)).To(Equal([]string{"fallback"}))
	})

	It("falls back without a completer", func() {
		Expect(llm.Extract[[]string](context.Background(), nil, prompt, parseList, fallback)).To(Equal([]string{"fallback"}))
	})

	It("records the prompt it sent", func() {
		c := llmtest.New().On("classify", `[]`)
		llm.Extract(context.Background(), c, prompt, parseList, fallback)
		Expect(c.Calls()).To(HaveLen(1))
		Expect(c.Calls()[0].User).To(Equal("q"))
	})
})

var _ = Describe("StripCodeFences", func() {
	It("removes a language-tagged fence", func() {
		Expect(llm.StripCodeFences("```sql\nSELECT * FROM rabbits\n```")).To(Equal("SELECT * FROM rabbits"))
	})

	It("removes a bare fence", func() {
		Expect(llm.StripCodeFences("```\n[\"pdf\"]\n```")).To(Equal(`["pdf"]`))
	})

	It("leaves unfenced text alone", func() {
		Expect(llm.StripCodeFences("  SELECT 1  ")).To(Equal("SELECT 1"))
	})
})

var _ = Describe("ParseJSON", func() {
	It("cuts surrounding prose", func() {
		var v map[string]any
		Expect(llm.ParseJSON(`Here you go: {"timeWindowHours": 24} hope it helps`, &v)).To(Succeed())
		Expect(v["timeWindowHours"]).To(BeNumerically("==", 24))
	})

	It("repairs trailing commas", func() {
		var v []string
		Expect(llm.ParseJSON(`["sql", "weather",]`, &v)).To(Succeed())
		Expect(v).To(Equal([]string{"sql", "weather"}))
	})

	It("rejects text without JSON", func() {
		var v []string
		err := llm.ParseJSON("use the sql agent", &v)
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "JSON")).To(BeTrue())
	})
})
