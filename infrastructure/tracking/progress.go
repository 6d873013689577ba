package tracking

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/helixml/taxon/domain/task"
)

// ProgressReporter draws one progress bar per operation that reports a
// total. Statuses without a total are ignored.
type ProgressReporter struct {
	out  io.Writer
	mu   sync.Mutex
	bars map[string]*progressbar.ProgressBar
}

// NewProgressReporter creates a ProgressReporter writing to out.
func NewProgressReporter(out io.Writer) *ProgressReporter {
	return &ProgressReporter{out: out, bars: make(map[string]*progressbar.ProgressBar)}
}

// IsTerminal reports whether stderr is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// OnChange advances or finishes the bar for the status.
func (p *ProgressReporter) OnChange(_ context.Context, status task.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := status.ID()
	bar, ok := p.bars[id]
	if !ok {
		if status.Total() <= 0 || status.State().IsTerminal() {
			return nil
		}
		bar = p.newBar(status)
		p.bars[id] = bar
	}

	if status.State().IsTerminal() {
		delete(p.bars, id)
		if status.State() == task.ReportingStateCompleted {
			return bar.Finish()
		}
		return bar.Exit()
	}

	if status.Total() > 0 && int64(status.Total()) != bar.GetMax64() {
		bar.ChangeMax(status.Total())
	}
	return bar.Set(status.Current())
}

// Active returns the number of bars still drawing.
func (p *ProgressReporter) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bars)
}

func (p *ProgressReporter) newBar(status task.Status) *progressbar.ProgressBar {
	return progressbar.NewOptions(status.Total(),
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(status.Operation().Short()),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
