package headless

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"nfviz.dev/core/registry"
	"nfviz.dev/core/status"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	red    = lipgloss.Color("204")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

type styles struct {
	accent  lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
	faint   lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		accent:  r.NewStyle().Foreground(purple),
		success: r.NewStyle().Foreground(green),
		err:     r.NewStyle().Foreground(red),
		warn:    r.NewStyle().Foreground(yellow),
		muted:   r.NewStyle().Foreground(dim),
		faint:   r.NewStyle().Foreground(faint),
		bold:    r.NewStyle().Bold(true),
	}
}

// Printer renders the store's change feed as terminal lines.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	reg    *registry.Registry
	s      styles
	r      *lipgloss.Renderer
	width  int
	cursor uint64
	count  int
}

func NewPrinter(w io.Writer, reg *registry.Registry) *Printer {
	width := 0
	for _, id := range reg.IDs() {
		width = max(width, len(id))
	}
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		reg:   reg,
		s:     newStyles(r),
		r:     r,
		width: width,
	}
}

// Cursor is the seq of the last change printed.
func (p *Printer) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Notice prints a plain line between changes.
func (p *Printer) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.s.muted.Render(msg))
}

func (p *Printer) statusStyle(st status.Status) lipgloss.Style {
	switch st {
	case status.StatusRunning:
		return p.s.warn
	case status.StatusComplete:
		return p.s.success
	case status.StatusError:
		return p.s.err
	default:
		return p.s.muted
	}
}

func (p *Printer) symbol(st status.Status) string {
	switch st {
	case status.StatusRunning:
		return "●"
	case status.StatusComplete:
		return "✓"
	case status.StatusError:
		return "✗"
	default:
		return "○"
	}
}

// Change prints one change. Changes at or before the cursor are skipped.
func (p *Printer) Change(c status.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.Seq != 0 && c.Seq <= p.cursor {
		return nil
	}

	at := c.At.Local().Format(status.TimestampLayout)
	if c.Entry != nil {
		at = c.Entry.Timestamp
	}
	prefix := p.s.faint.Render(at) + " " + p.s.accent.Render(fmt.Sprintf("%-*s", p.width, c.Step))

	var line string
	switch c.Kind {
	case status.ChangeStatus:
		st := p.statusStyle(c.Status)
		line = st.Render(p.symbol(c.Status) + " " + c.Status.String())
	case status.ChangeLog:
		msg := c.Entry.Message
		switch c.Entry.Kind {
		case status.LogSuccess:
			msg = p.s.success.Render(msg)
		case status.LogError:
			msg = p.s.err.Render(msg)
		}
		line = p.s.faint.Render("│") + " " + msg
	case status.ChangeURL:
		line = p.s.muted.Render("→ " + c.URL)
	default:
		return nil
	}

	if _, err := fmt.Fprintln(p.w, prefix+" "+line); err != nil {
		return err
	}
	p.cursor = c.Seq
	p.count++
	return nil
}

// Summary prints a table of final step states.
func (p *Printer) Summary(snap status.Snapshot, started time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[status.Status]int)
	rows := make([][]string, 0, len(p.reg.IDs()))
	for _, step := range p.reg.Steps() {
		st := snap.Status(step.ID)
		counts[st]++
		rows = append(rows, []string{
			step.ID,
			step.Label,
			p.statusStyle(st).Render(p.symbol(st) + " " + st.String()),
			humanize.Comma(int64(len(snap.Logs(step.ID)))),
		})
	}

	headerStyle := p.r.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle := p.r.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.r.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("STEP", "LABEL", "STATUS", "LOGS").
		Rows(rows...)

	fmt.Fprintln(p.w, t.String())

	var parts []string
	parts = append(parts, fmt.Sprintf("%d of %s complete", counts[status.StatusComplete], english.Plural(len(rows), "step", "")))
	if n := counts[status.StatusError]; n > 0 {
		parts = append(parts, p.s.err.Render(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[status.StatusRunning]; n > 0 {
		parts = append(parts, p.s.warn.Render(fmt.Sprintf("%d still running", n)))
	}
	took := strings.TrimSpace(humanize.RelTime(started, time.Now(), "", ""))
	if took == "now" {
		took = "under a second"
	}
	fmt.Fprintf(p.w, "%s, %s in %s\n", strings.Join(parts, ", "), english.Plural(p.count, "change", ""), took)
}
