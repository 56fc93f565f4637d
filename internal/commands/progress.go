// internal/commands/progress.go
package kolosalctl

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mwiater/kolosalctl/internal/kolosal"
	"github.com/mwiater/kolosalctl/internal/util"
	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// progressReporter renders download progress for one or more engines.
type progressReporter interface {
	Track(id string) kolosal.ProgressFunc
	Done(id string, err error)
	Wait()
}

// newProgressReporter draws bars on a terminal and prints plain lines elsewhere.
func newProgressReporter(w io.Writer) progressReporter {
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return newBarReporter(w)
	}
	return newLineReporter(w)
}

type barState struct {
	bar   *mpb.Bar
	state kolosal.DownloadState
	bytes string
}

type barReporter struct {
	progress *mpb.Progress
	mu       sync.Mutex
	bars     map[string]*barState
}

func newBarReporter(w io.Writer) *barReporter {
	return &barReporter{
		progress: mpb.New(
			mpb.WithOutput(w),
			mpb.WithWidth(40),
			mpb.WithRefreshRate(180*time.Millisecond),
		),
		bars: map[string]*barState{},
	}
}

func (r *barReporter) Track(id string) kolosal.ProgressFunc {
	st := &barState{state: kolosal.StatePending}
	st.bar = r.progress.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(id, decor.WC{W: len(id) + 1, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncSpace),
			decor.Any(func(decor.Statistics) string {
				r.mu.Lock()
				defer r.mu.Unlock()
				return fmt.Sprintf(" %s %s", st.state, st.bytes)
			}),
		),
	)
	r.mu.Lock()
	r.bars[id] = st
	r.mu.Unlock()

	return func(pct float64, state kolosal.DownloadState, downloaded, total int64) {
		r.mu.Lock()
		st.state = state
		if total > 0 {
			st.bytes = util.FormatBytes(downloaded) + "/" + util.FormatBytes(total)
		}
		r.mu.Unlock()
		if state.Succeeded() {
			pct = 100
		}
		st.bar.SetCurrent(int64(pct))
	}
}

func (r *barReporter) Done(id string, err error) {
	r.mu.Lock()
	st := r.bars[id]
	r.mu.Unlock()
	if st == nil {
		return
	}
	if err != nil {
		st.bar.Abort(false)
		return
	}
	st.bar.SetTotal(-1, true)
}

func (r *barReporter) Wait() { r.progress.Wait() }

// lineReporter prints one line per whole-percent step or state change.
type lineReporter struct {
	mu   sync.Mutex
	w    io.Writer
	last map[string]lineMark
}

type lineMark struct {
	pct   int
	state kolosal.DownloadState
}

func newLineReporter(w io.Writer) *lineReporter {
	return &lineReporter{w: w, last: map[string]lineMark{}}
}

func (r *lineReporter) Track(id string) kolosal.ProgressFunc {
	return func(pct float64, state kolosal.DownloadState, downloaded, total int64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		mark := lineMark{pct: int(pct), state: state}
		if prev, ok := r.last[id]; ok && prev == mark {
			return
		}
		r.last[id] = mark
		fmt.Fprintln(r.w, describeProgress(id, pct, state, downloaded, total))
	}
}

func (r *lineReporter) Done(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		printError(r.w, "%s: %v", id, err)
		return
	}
	printSuccess(r.w, "%s: done", id)
}

func (r *lineReporter) Wait() {}

// describeProgress renders one observation the way the status command prints it.
func describeProgress(id string, pct float64, state kolosal.DownloadState, downloaded, total int64) string {
	switch state {
	case kolosal.StateNotFound:
		return fmt.Sprintf("%s: model file already present, nothing to download", id)
	case kolosal.StateCreatingEngine:
		return fmt.Sprintf("%s: download complete, creating engine", id)
	case kolosal.StateEngineCreated:
		return fmt.Sprintf("%s: engine created", id)
	}
	line := fmt.Sprintf("%s: %s %s", id, state, util.FormatPercent(pct))
	if total > 0 {
		line += fmt.Sprintf(" (%s/%s)", util.FormatBytes(downloaded), util.FormatBytes(total))
	}
	return line
}
