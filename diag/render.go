package diag

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// RenderOptions configure a Renderer.
type RenderOptions struct {
	// Color enables ANSI colors regardless of the terminal.
	Color bool
	// Short prints only the header line of each diagnostic.
	Short bool
	// Context is the number of source lines printed above the offending line.
	Context int
	// TabWidth expands tabs in printed source lines. Defaults to 4.
	TabWidth int
}

// Renderer formats diagnostics against their source text.
type Renderer struct {
	errStyle   *color.Color
	warnStyle  *color.Color
	locStyle   *color.Color
	caretStyle *color.Color
	gutter     *color.Color
	opts       RenderOptions
}

// NewRenderer creates a renderer.
func NewRenderer(opts RenderOptions) *Renderer {
	if opts.TabWidth <= 0 {
		opts.TabWidth = 4
	}
	r := &Renderer{
		opts:       opts,
		errStyle:   color.New(color.FgRed, color.Bold),
		warnStyle:  color.New(color.FgYellow, color.Bold),
		locStyle:   color.New(color.Bold),
		caretStyle: color.New(color.FgGreen, color.Bold),
		gutter:     color.New(color.FgBlue),
	}
	for _, c := range []*color.Color{r.errStyle, r.warnStyle, r.locStyle, r.caretStyle, r.gutter} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Render writes every diagnostic of list. src may be nil, in which case only
// header lines are printed.
func (r *Renderer) Render(w io.Writer, src *Source, list List) error {
	for _, d := range list {
		if _, err := io.WriteString(w, r.Format(src, d)); err != nil {
			return err
		}
	}
	return nil
}

// Format renders a single diagnostic, terminated by a newline.
func (r *Renderer) Format(src *Source, d Diagnostic) string {
	var b strings.Builder

	sev := r.errStyle
	if d.Severity == SevWarning {
		sev = r.warnStyle
	}
	if loc := d.Location.String(); loc != "" {
		b.WriteString(r.locStyle.Sprint(loc + ":"))
		b.WriteByte(' ')
	}
	b.WriteString(sev.Sprint(d.Severity.String() + ":"))
	b.WriteByte(' ')
	b.WriteString(d.Message)
	b.WriteByte('\n')

	if r.opts.Short || src == nil || d.Location.IsZero() {
		return b.String()
	}
	line, ok := src.Line(d.Location.Line)
	if !ok {
		return b.String()
	}

	width := len(fmt.Sprint(d.Location.Line))
	first := max(d.Location.Line-r.opts.Context, 1)
	for n := first; n < d.Location.Line; n++ {
		ctx, _ := src.Line(n)
		r.writeSourceLine(&b, width, n, ctx)
	}
	r.writeSourceLine(&b, width, d.Location.Line, line)

	pad, span := r.columns(line, d.Location.FirstColumn, d.Location.LastColumn)
	b.WriteString(strings.Repeat(" ", width+2))
	b.WriteString(r.gutter.Sprint("|"))
	b.WriteByte(' ')
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(r.caretStyle.Sprint("^" + strings.Repeat("~", span-1)))
	b.WriteByte('\n')
	return b.String()
}

func (r *Renderer) writeSourceLine(b *strings.Builder, width, n int, line string) {
	b.WriteString(r.gutter.Sprintf("%*d |", width+1, n))
	b.WriteByte(' ')
	b.WriteString(r.expandTabs(line))
	b.WriteByte('\n')
}

// columns converts byte columns on line into a display offset and an
// underline width of at least one cell.
func (r *Renderer) columns(line string, firstCol, lastCol int) (pad, span int) {
	start := clamp(firstCol-1, 0, len(line))
	end := clamp(lastCol-1, start, len(line))
	pad = runewidth.StringWidth(r.expandTabs(line[:start]))
	span = runewidth.StringWidth(r.expandTabs(line[:end])) - pad
	return pad, max(span, 1)
}

func (r *Renderer) expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var b strings.Builder
	col := 0
	for _, c := range s {
		if c == '\t' {
			n := r.opts.TabWidth - col%r.opts.TabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(c)
		col += runewidth.RuneWidth(c)
	}
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
