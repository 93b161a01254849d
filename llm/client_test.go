package llm_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rabbitry/llm"
)

var _ = Describe("Client", func() {
	var (
		srv      *httptest.Server
		received map[string]any
		status   int
	)

	BeforeEach(func() {
		received = nil
		status = http.StatusOK
		srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(strings.HasSuffix(r.URL.Path, "/chat/completions")).To(BeTrue())
			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(body, &received)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				_, _ = w.Write([]byte(`{"error":{"message":"bad request","type":"invalid_request_error"}}`))
				return
			}
			_, _ = w.Write([]byte(`{
				"id": "cmpl-1",
				"object": "chat.completion",
				"created": 0,
				"model": "gpt-4",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "[\"sql\"]"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
			}`))
		}))
	})

	AfterEach(func() {
		srv.Close()
	})

	It("sends system and user messages with the defaults", func() {
		client := llm.NewClient(llm.NewOpenAIProvider("", srv.URL), "", nil)
		text, err := client.Complete(context.Background(), llm.Prompt{System: "You classify.", User: "How many rabbits?"})
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal(`["sql"]`))

		Expect(received["model"]).To(Equal("gpt-4"))
		Expect(received["temperature"]).To(BeNumerically("~", 0.3, 0.0001))
		Expect(received["max_tokens"]).To(BeNumerically("==", 1000))
		msgs := received["messages"].([]any)
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].(map[string]any)["role"]).To(Equal("system"))
		Expect(msgs[1].(map[string]any)["content"]).To(Equal("How many rabbits?"))
	})

	It("honours per-prompt overrides", func() {
		client := llm.NewClient(llm.NewOpenAIProvider("key", srv.URL), "local-model", nil)
		_, err := client.Complete(context.Background(), llm.Prompt{User: "hi", Temperature: 0.1, MaxTokens: 200})
		Expect(err).NotTo(HaveOccurred())
		Expect(received["model"]).To(Equal("local-model"))
		Expect(received["temperature"]).To(BeNumerically("~", 0.1, 0.0001))
		Expect(received["max_tokens"]).To(BeNumerically("==", 200))
		Expect(received["messages"].([]any)).To(HaveLen(1))
	})

	It("wraps endpoint errors", func() {
		status = http.StatusBadRequest
		client := llm.NewClient(llm.NewOpenAIProvider("key", srv.URL), "", nil)
		_, err := client.Complete(context.Background(), llm.Prompt{User: "hi"})
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("completion request"))
	})
})
