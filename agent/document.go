package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"rabbitry/agent/internal/prompts"
	"rabbitry/llm"
	"rabbitry/store"
)

const (
	documentDescription = "Document analysis, manual reading, research questions about rabbit care best practices"
	manualSource        = "Built-in Rabbit Care Manual"
	maxDocumentSources  = 5
)

type DocumentOptions struct {
	LLM llm.Completer
	// Documents holds the uploaded documents table; nil uses the manual only.
	Documents store.Tabular
	Logger    hclog.Logger
}

// DocumentAgent answers rabbit-care questions from the built-in manual and
// the farm's processed uploads.
type DocumentAgent struct {
	llm    llm.Completer
	docs   store.Tabular
	logger hclog.Logger

	mu       sync.Mutex
	content  string
	uploaded []store.Row
	extra    []addedDocument
	loaded   bool
}

type addedDocument struct {
	title   string
	content string
}

func NewDocumentAgent(opts DocumentOptions) *DocumentAgent {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &DocumentAgent{llm: opts.LLM, docs: opts.Documents, logger: opts.Logger}
}

func (a *DocumentAgent) Name() string        { return PDF }
func (a *DocumentAgent) Description() string { return documentDescription }

func (a *DocumentAgent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.load(ctx)
	return nil
}

// Reload re-reads the uploaded documents.
func (a *DocumentAgent) Reload(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = false
	a.load(ctx)
}

// AddDocument appends titled content to the knowledge text.
func (a *DocumentAgent) AddDocument(title, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.extra = append(a.extra, addedDocument{title: title, content: content})
	if a.loaded {
		a.content += fmt.Sprintf("\n\n%s:\n%s", title, content)
	}
}

// AvailableDocuments lists titles added with AddDocument.
func (a *DocumentAgent) AvailableDocuments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	titles := make([]string, len(a.extra))
	for i, d := range a.extra {
		titles[i] = d.title
	}
	return titles
}

// load must be called with mu held.
func (a *DocumentAgent) load(ctx context.Context) {
	if a.loaded {
		return
	}
	a.content = prompts.CareManual()
	a.uploaded = nil

	if a.docs != nil {
		rows, err := a.docs.Select(ctx, store.SelectQuery{
			Table:   "documents",
			OrderBy: "uploaded_at",
			Desc:    true,
		}.Eq("processing_status", "completed").Eq("is_archived", false))
		if err != nil {
			a.logger.Warn("could not load uploaded documents", "error", err)
		} else {
			a.uploaded = rows
			a.logger.Debug("loaded uploaded documents", "count", len(rows))
		}
	}

	if len(a.uploaded) > 0 {
		var sb strings.Builder
		for _, doc := range a.uploaded {
			fmt.Fprintf(&sb, "\nDOCUMENT: %s\nCATEGORY: %s\nDESCRIPTION: %s\nCONTENT: %s\n---\n",
				docTitle(doc),
				text(doc, "category"),
				orDefault(text(doc, "description"), "No description available"),
				orDefault(text(doc, "extracted_text"), "Text not yet extracted"))
		}
		a.content += "\n\nUPLOADED DOCUMENTS:\n" + sb.String()
	}
	for _, d := range a.extra {
		a.content += fmt.Sprintf("\n\n%s:\n%s", d.title, d.content)
	}
	a.loaded = true
}

func (a *DocumentAgent) ProcessQuery(ctx context.Context, query string, opts Options) (*Result, error) {
	a.mu.Lock()
	a.load(ctx)
	content := a.content
	sources := a.relevantSources(query)
	a.mu.Unlock()

	answer, err := a.answer(ctx, query, content)
	if err != nil {
		a.logger.Error("document query failed", "error", err)
		return Failure(PDF, query, err), nil
	}
	return &Result{
		Agent:         PDF,
		Success:       true,
		OriginalQuery: query,
		Answer:        answer,
		Sources:       sources,
	}, nil
}

var errNoCompleter = errors.New("no completion client configured")

func (a *DocumentAgent) answer(ctx context.Context, query, content string) (string, error) {
	if a.llm == nil {
		return "", errNoCompleter
	}
	out, err := a.llm.Complete(ctx, llm.Prompt{
		System:      prompts.GetDocumentPrompt(),
		User:        prompts.DocumentUser(query, content),
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// relevantSources must be called with mu held.
func (a *DocumentAgent) relevantSources(query string) []string {
	sources := []string{manualSource}

	q := strings.ToLower(query)
	first := q
	if i := strings.Index(q, " "); i >= 0 {
		first = q[:i]
	}

	for _, doc := range a.uploaded {
		if len(sources) > maxDocumentSources {
			break
		}
		body := strings.ToLower(text(doc, "title") + " " + text(doc, "description") + " " + text(doc, "extracted_text"))
		if strings.Contains(body, first) || strings.Contains(strings.ToLower(text(doc, "category")), q) {
			sources = append(sources, docTitle(doc))
		}
	}
	return sources
}

func docTitle(doc store.Row) string {
	return orDefault(text(doc, "title"), text(doc, "original_filename"))
}

func text(row store.Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
