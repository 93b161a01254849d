package cli_test

import (
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"rabbitry/orchestrator"
	"rabbitry/store"
	"rabbitry/streamers/cli"
)

var _ = Describe("ChatHandler", func() {
	var out *gbytes.Buffer

	BeforeEach(func() {
		out = gbytes.NewBuffer()
	})

	It("reads trimmed input until EOF", func() {
		h := cli.NewChatHandler(strings.NewReader("  how many rabbits?  \nlast"), out, "notty")
		Expect(h.AwaitClientAnswer()).To(Equal("how many rabbits?"))
		Expect(h.AwaitClientAnswer()).To(Equal("last"))
		_, err := h.AwaitClientAnswer()
		Expect(err).To(MatchError(io.EOF))
	})

	It("renders results and agent progress", func() {
		h := cli.NewChatHandler(strings.NewReader(""), out, "notty")
		h.Thinking()
		h.AgentStarted("sql", "how many rabbits")
		h.AgentCompleted("sql", true, "")
		h.AgentCompleted("weather", false, "no key")
		h.Result(&orchestrator.Response{Success: true, CombinedSummary: "Found 1 database record."})

		Eventually(out).Should(gbytes.Say("sql"))
		Expect(string(out.Contents())).To(ContainSubstring("weather"))
		Expect(string(out.Contents())).To(ContainSubstring("(no key)"))
		Expect(string(out.Contents())).To(ContainSubstring("Found 1 database record."))
	})

	It("lists history", func() {
		h := cli.NewChatHandler(strings.NewReader(""), out, "notty")
		h.History(nil)
		Expect(string(out.Contents())).To(ContainSubstring("No queries recorded yet."))

		h.History([]store.QueryRecord{{ID: "0123456789abcdef", Query: "How many rabbits?", Agents: []string{"sql"}, Status: store.StatusCompleted, StartedAt: time.Now()}})
		Expect(string(out.Contents())).To(ContainSubstring("01234567"))
		Expect(string(out.Contents())).To(ContainSubstring("How many rabbits?"))
	})

	It("prints insights", func() {
		h := cli.NewChatHandler(strings.NewReader(""), out, "notty")
		h.Insights([]orchestrator.Insight{{Label: "Total Rabbits", Value: 4}})
		Expect(string(out.Contents())).To(ContainSubstring("Total Rabbits"))
	})
})
