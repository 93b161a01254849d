package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"rabbitry/orchestrator"
	"rabbitry/store"
	"rabbitry/streamers"
)

// ChatHandler implements streamers.QueryHandler for terminal I/O
type ChatHandler struct {
	reader   *bufio.Reader
	out      io.Writer
	spinner  *spinner
	renderer *glamour.TermRenderer
	// Verbose prints per-agent progress lines
	Verbose bool
}

var (
	_ streamers.QueryHandler    = (*ChatHandler)(nil)
	_ streamers.InsightsHandler = (*ChatHandler)(nil)
)

// NewChatHandler creates a new CLI handler. style is a glamour standard
// style name; empty picks one from the terminal.
func NewChatHandler(in io.Reader, out io.Writer, style string) *ChatHandler {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(120)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	renderer, _ := glamour.NewTermRenderer(opts...)
	return &ChatHandler{
		reader:   bufio.NewReader(in),
		out:      out,
		spinner:  newSpinner(out),
		renderer: renderer,
	}
}

func (s *ChatHandler) Welcome(agents []string, modelName string) {
	fmt.Fprintf(s.out, "%s%sRabbitry farm assistant%s (model: %s, agents: %s)\n", ColorBold, ColorOrange, ColorReset, modelName, strings.Join(agents, ", "))
	fmt.Fprintf(s.out, "%sType 'exit' or 'quit' to end the conversation.%s\n\n", ColorGray, ColorReset)
}

func (s *ChatHandler) AwaitClientAnswer() (string, error) {
	fmt.Fprintf(s.out, "%s>  %s", ColorGray, ColorReset)
	input, err := s.reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func (s *ChatHandler) Goodbye() {
	fmt.Fprintf(s.out, "%sGoodbye!%s\n", ColorGray, ColorReset)
}

func (s *ChatHandler) Error(err error) {
	s.spinner.Stop()
	fmt.Fprintf(s.out, "%sError: %v%s\n", ColorRed, err, ColorReset)
}

func (s *ChatHandler) Thinking() {
	s.spinner.Start("Choosing agents...")
}

func (s *ChatHandler) AgentStarted(agentName string, query string) {
	s.spinner.Stop()
	if s.Verbose {
		fmt.Fprintf(s.out, "%s→ %s%s%s: %s%s\n", ColorGray, ColorBold, agentName, ColorReset+ColorGray, query, ColorReset)
	}
	s.spinner.Start(fmt.Sprintf("Asking %s%s%s agent...", ColorBold, agentName, ColorReset))
}

func (s *ChatHandler) AgentCompleted(agentName string, success bool, errMsg string) {
	s.spinner.Stop()
	if success {
		fmt.Fprintf(s.out, "%s✓%s %s\n", ColorGreen, ColorReset, agentName)
		return
	}
	fmt.Fprintf(s.out, "%s✗%s %s %s(%s)%s\n", ColorRed, ColorReset, agentName, ColorGray, errMsg, ColorReset)
}

func (s *ChatHandler) Result(resp *orchestrator.Response) {
	s.spinner.Stop()
	fmt.Fprintf(s.out, "\n%s\n\n", s.render(streamers.RenderMarkdown(resp)))
}

func (s *ChatHandler) Insights(insights []orchestrator.Insight) {
	var b strings.Builder
	b.WriteString("| Insight | Value |\n| --- | --- |\n")
	for _, in := range insights {
		fmt.Fprintf(&b, "| %s | %v |\n", in.Label, in.Value)
	}
	fmt.Fprintln(s.out, s.render(b.String()))
}

func (s *ChatHandler) History(records []store.QueryRecord) {
	if len(records) == 0 {
		fmt.Fprintf(s.out, "%sNo queries recorded yet.%s\n", ColorGray, ColorReset)
		return
	}
	var b strings.Builder
	b.WriteString("| ID | Started | Status | Agents | Query |\n| --- | --- | --- | --- | --- |\n")
	for _, r := range records {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			shortID(r.ID), r.StartedAt.Local().Format("Jan 2 15:04"), r.Status, strings.Join(r.Agents, ", "), strings.ReplaceAll(r.Query, "|", `\|`))
	}
	fmt.Fprintln(s.out, s.render(b.String()))
}

// render applies glamour; glamour adds leading/trailing newlines, which are trimmed
func (s *ChatHandler) render(md string) string {
	if s.renderer != nil {
		if out, err := s.renderer.Render(md); err == nil {
			return strings.TrimSpace(out)
		}
	}
	return strings.TrimSpace(md)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// spinner handles the loading animation
type spinner struct {
	out     io.Writer
	frames  []string
	stop    chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

func newSpinner(out io.Writer) *spinner {
	return &spinner{
		out:    out,
		frames: []string{"◐", "◓", "◑", "◒"},
	}
}

func (s *spinner) Start(message string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	stop, stopped := s.stop, s.stopped
	s.mu.Unlock()

	go func() {
		defer close(stopped)
		i := 0
		for {
			select {
			case <-stop:
				fmt.Fprint(s.out, "\r\033[K") // Clear line
				return
			default:
				fmt.Fprintf(s.out, "\r%s%s%s %s", ColorGray, s.frames[i%len(s.frames)], ColorReset, message)
				i++
				time.Sleep(80 * time.Millisecond)
			}
		}
	}()
}

func (s *spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, stopped := s.stop, s.stopped
	s.mu.Unlock()

	close(stop)
	<-stopped
}
