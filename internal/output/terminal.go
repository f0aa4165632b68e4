package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"
	"golang.org/x/term"

	"genflow/internal/agent"
	"genflow/internal/orchestrator"
)

const ruleWidth = 70

// MarkdownRenderer renders markdown for display.
type MarkdownRenderer interface {
	Render(string) (string, error)
}

// Printer writes the run summary. Colors and markdown rendering are only
// used on a terminal.
type Printer struct {
	out      io.Writer
	width    int
	colorize bool
	markdown MarkdownRenderer

	title   lipgloss.Style
	success *color.Color
	failure *color.Color
	warning *color.Color
}

// NewPrinter inspects out and enables styling when it is a terminal.
func NewPrinter(out io.Writer) *Printer {
	width := detectOutputWidth(out)
	p := newPrinter(out, width > 0, width)
	if p.colorize {
		if renderer := buildMarkdownRenderer(); renderer != nil {
			p.markdown = renderer
		}
	}
	return p
}

// NewPlainPrinter returns a Printer with styling disabled.
func NewPlainPrinter(out io.Writer) *Printer {
	return newPrinter(out, false, 0)
}

func newPrinter(out io.Writer, colorize bool, width int) *Printer {
	p := &Printer{
		out:      out,
		width:    width,
		colorize: colorize,
		title:    lipgloss.NewStyle().Bold(true),
		success:  color.New(color.FgGreen, color.Bold),
		failure:  color.New(color.FgRed, color.Bold),
		warning:  color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.success, p.failure, p.warning} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// WithMarkdown overrides the markdown renderer.
func (p *Printer) WithMarkdown(renderer MarkdownRenderer) *Printer {
	p.markdown = renderer
	return p
}

func buildMarkdownRenderer() MarkdownRenderer {
	options := []glamour.TermRendererOption{
		glamour.WithWordWrap(100),
		glamour.WithPreservedNewLines(),
	}
	if value, ok := os.LookupEnv("GLAMOUR_STYLE"); ok && value != "" {
		options = append(options, glamour.WithEnvironmentConfig())
	} else {
		options = append(options, glamour.WithAutoStyle())
	}
	renderer, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return nil
	}
	return renderer
}

// Banner prints a titled horizontal rule block.
func (p *Printer) Banner(title string) {
	rule := strings.Repeat("=", ruleWidth)
	if p.colorize {
		title = p.title.Render(title)
	}
	fmt.Fprintf(p.out, "%s\n%s\n%s\n", rule, title, rule)
}

// Summary prints the task summary block and the result preview.
func (p *Printer) Summary(handle orchestrator.TaskHandle) {
	taskID := handle.ID
	if taskID == "" {
		taskID = "N/A"
	}
	status := string(handle.Status)
	if status == "" {
		status = "unknown"
	}

	fmt.Fprintln(p.out)
	p.Banner("📊 Codegen Task Summary")
	fmt.Fprintf(p.out, "Task ID:        %s\n", taskID)
	fmt.Fprintf(p.out, "Status:         %s\n", p.statusColor(handle.Status).Sprint(status))
	if handle.Elapsed > 0 {
		fmt.Fprintf(p.out, "Execution Time: %.1fs\n", handle.ExecutionSeconds())
	}
	if handle.PollCount > 0 {
		fmt.Fprintf(p.out, "Poll Count:     %d\n", handle.PollCount)
	}
	if handle.TimedOut {
		fmt.Fprintf(p.out, "%s\n", p.warning.Sprint("Polling budget exceeded before the task finished"))
	}
	if handle.Error != "" {
		fmt.Fprintf(p.out, "Error:          %s\n", handle.Error)
	}
	fmt.Fprintln(p.out)

	if text := ResultText(handle); text != "" {
		rule := strings.Repeat("-", ruleWidth)
		fmt.Fprintln(p.out, "📝 Result Preview:")
		fmt.Fprintln(p.out, rule)
		fmt.Fprintln(p.out, p.constrain(Preview(text, PreviewLimit)))
		fmt.Fprintln(p.out, rule)
		fmt.Fprintln(p.out)
	}
}

// Verdict prints the closing line for handle.
func (p *Printer) Verdict(handle orchestrator.TaskHandle) {
	fmt.Fprintln(p.out, strings.Repeat("=", ruleWidth))
	switch {
	case handle.Succeeded():
		fmt.Fprintln(p.out, p.success.Sprint("✅ Task completed successfully"))
	case handle.Failed():
		fmt.Fprintln(p.out, p.failure.Sprint("❌ Task failed"))
	default:
		fmt.Fprintln(p.out, p.warning.Sprint("⚠️  Task finished with unknown status"))
	}
}

// Markdown prints md, rendered when a renderer is available.
func (p *Printer) Markdown(md string) {
	if p.markdown != nil {
		if rendered, err := p.markdown.Render(md); err == nil {
			fmt.Fprint(p.out, rendered)
			return
		}
	}
	fmt.Fprint(p.out, md)
}

// Info prints a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Warn prints a highlighted line.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.out, p.warning.Sprintf(format, args...))
}

// Fail prints an error line.
func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.out, p.failure.Sprintf(format, args...))
}

func (p *Printer) statusColor(status agent.Status) *color.Color {
	switch status {
	case agent.StatusCompleted:
		return p.success
	case agent.StatusFailed, agent.StatusError:
		return p.failure
	}
	return p.warning
}

func (p *Printer) constrain(text string) string {
	return ConstrainWidth(text, p.width)
}

// ConstrainWidth truncates every line of text to width display cells.
func ConstrainWidth(text string, width int) string {
	if text == "" || width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if ansi.StringWidth(line) > width {
			lines[i] = ansi.Truncate(line, width, "…")
		}
	}
	return strings.Join(lines, "\n")
}

func detectOutputWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok {
		return 0
	}
	fd := int(file.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 0
	}
	return width
}
