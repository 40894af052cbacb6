package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rodaine/table"

	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/session"
	"github.com/starford/postdesk/internal/state"
	"github.com/starford/postdesk/internal/video"
)

// Printer writes results to out and diagnostics to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
}

// NewPrinter creates a printer.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{out: out, errOut: errOut}
}

// Out is the result writer.
func (p *Printer) Out() io.Writer { return p.out }

func (p *Printer) line(w io.Writer, icon string, style lipgloss.Style, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", icon, style.Render(fmt.Sprintf(format, args...)))
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	p.line(p.out, SuccessIcon, SuccessStyle, format, args...)
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	p.line(p.out, InfoIcon, InfoStyle, format, args...)
}

// Notice prints an informational line to the diagnostic writer, for
// prompts that must not mix with command output.
func (p *Printer) Notice(format string, args ...any) {
	p.line(p.errOut, InfoIcon, InfoStyle, format, args...)
}

// Warning prints a warning to the diagnostic writer.
func (p *Printer) Warning(format string, args ...any) {
	p.line(p.errOut, WarningIcon, WarningStyle, format, args...)
}

// Error prints an error to the diagnostic writer.
func (p *Printer) Error(format string, args ...any) {
	p.line(p.errOut, ErrorIcon, ErrorStyle, format, args...)
}

func (p *Printer) newTable(headers ...any) table.Table {
	tbl := table.New(headers...)
	tbl.WithWriter(p.out)
	tbl.WithFirstColumnFormatter(func(format string, vals ...any) string {
		return BoldStyle.Render(fmt.Sprintf(format, vals...))
	})
	tbl.WithPadding(2)
	tbl.WithWidthFunc(lipgloss.Width)
	return tbl
}

// Posts prints the post list with a published marker per row.
func (p *Printer) Posts(items []postservice.PostListItem) {
	if len(items) == 0 {
		p.Info("no posts")
		return
	}
	tbl := p.newTable("", "TITLE", "SLUG", "ID")
	for _, it := range items {
		mark := DimStyle.Render(DraftMark)
		if it.Published {
			mark = SuccessStyle.Render(PublishedMark)
		}
		tbl.AddRow(mark, it.Title, it.Slug, DimStyle.Render(it.ID))
	}
	tbl.Print()
}

// Post prints one post with its body.
func (p *Printer) Post(d *postservice.PostDetail) {
	state := "draft"
	if d.Published {
		state = "published"
	} else if d.State != "" {
		state = d.State
	}
	fmt.Fprintf(p.out, "%s %s\n", BoldStyle.Render(d.Title), DimStyle.Render("("+d.ID+")"))
	fmt.Fprintf(p.out, "%s %s\n", DimStyle.Render("Slug:"), d.Slug)
	fmt.Fprintf(p.out, "%s %s\n\n", DimStyle.Render("State:"), state)
	body := d.Body
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	fmt.Fprint(p.out, body)
}

// SearchHits prints search results with a body excerpt.
func (p *Printer) SearchHits(hits []state.SearchHit) {
	if len(hits) == 0 {
		p.Info("no matches")
		return
	}
	tbl := p.newTable("TITLE", "SLUG", "EXCERPT")
	for _, h := range hits {
		tbl.AddRow(h.Title, h.Slug, DimStyle.Render(h.Snippet))
	}
	tbl.Print()
}

// Tags prints tags with their popularity rank.
func (p *Printer) Tags(tags []models.Tag) {
	if len(tags) == 0 {
		p.Info("no tags found")
		return
	}
	tbl := p.newTable("ID", "LABEL", "RANK")
	for _, t := range tags {
		rank := "-"
		if t.Fields.PopularityOrder != nil && *t.Fields.PopularityOrder != 0 {
			rank = fmt.Sprint(*t.Fields.PopularityOrder)
		}
		tbl.AddRow(t.ID, t.Fields.Label, rank)
	}
	tbl.Print()
}

// Sessions prints open edit sessions.
func (p *Printer) Sessions(infos []session.Info) {
	if len(infos) == 0 {
		p.Info("no open sessions")
		return
	}
	tbl := p.newTable("PATH", "POST", "STATE", "LAST SAVE")
	for _, s := range infos {
		last := "-"
		if !s.LastSave.IsZero() {
			last = s.LastSave.Format(time.DateTime)
		}
		tbl.AddRow(s.Path, s.Title, s.State, last)
	}
	tbl.Print()
}

// VideoStatus prints one status line.
func (p *Printer) VideoStatus(s video.Status) {
	msg := s.Message
	if msg == "" {
		msg = string(s.View)
	}
	switch s.View {
	case video.ViewReady:
		p.Success("%s", msg)
	case video.ViewError:
		p.Error("%s", msg)
	default:
		p.Info("%s: %s", s.View, msg)
	}
}

// Progress returns a callback that redraws an upload progress line on the
// diagnostic writer. Call the returned done func once the upload ends.
func (p *Printer) Progress(label string) (update func(read, total int64), done func()) {
	last := -1
	update = func(read, total int64) {
		if total <= 0 {
			return
		}
		pct := int(read * 100 / total)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(p.errOut, "\r%s %s %3d%%", InfoIcon, label, pct)
	}
	done = func() {
		if last >= 0 {
			fmt.Fprintln(p.errOut)
		}
	}
	return update, done
}

// Notifier adapts the printer to session save notifications.
type Notifier struct {
	p *Printer
}

// Notifier returns the session notifier backed by p.
func (p *Printer) Notifier() Notifier { return Notifier{p: p} }

// Info reports a successful save.
func (n Notifier) Info(msg string) { n.p.line(n.p.errOut, SuccessIcon, SuccessStyle, "%s", msg) }

// Error reports a failed save.
func (n Notifier) Error(msg string, err error) {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	n.p.line(n.p.errOut, ErrorIcon, ErrorStyle, "%s", msg)
}
