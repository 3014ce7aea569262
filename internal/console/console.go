// Package console is Cobble's IO multiplexer: it interleaves the
// stdout/stderr of concurrently running jobs into a single stream and
// arbitrates exclusive access to the real stdin for whichever job
// currently needs it.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Status is a job's terminal or in-flight state, generalized from the
// teacher's CI-job status machine to any kind of plan.Job.
type Status int

const (
	Pending Status = iota
	Running
	UpToDate
	Success
	Failed
	Skipped
)

func (s Status) label() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case UpToDate:
		return "up to date"
	case Success:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Phase is a job's position in the output-buffering state machine,
// independent of Status: a job is InProgress while it may still write
// output, Complete once Finish has recorded its terminal status and
// flushed whatever was buffered, and Closed once nothing further will
// ever be written or read for it.
type Phase int

const (
	PhaseInProgress Phase = iota
	PhaseComplete
	PhaseClosed
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	plainSuccess = color.New(color.FgGreen)
	plainFail    = color.New(color.FgRed)
	plainMuted   = color.New(color.FgHiBlack)
	plainRunning = color.New(color.FgCyan)
)

// jobState tracks one in-flight or completed job's status, phase, and
// (while not yet the active job) buffered output lines, the
// generalization of the teacher's TrackedJob.
type jobState struct {
	id     string
	status Status
	phase  Phase
	err    error
	lines  []line
}

type line struct {
	stream string // "stdout" or "stderr"
	text   string
}

// Multiplexer owns every job's state and serializes writes to the
// underlying terminal so concurrent workers never interleave partial
// lines. Exactly one job at a time may be "active": its stdout/stderr
// write straight through to the terminal as they arrive, instead of
// being buffered until Finish, so an interactive job's prompts are
// visible in real time rather than appearing only after it completes.
// Every other job's output is buffered and flushed per ShowOutput
// policy when it finishes.
type Multiplexer struct {
	mu     sync.Mutex
	out    io.Writer
	styled bool

	jobs   map[string]*jobState
	order  []string
	active string

	stdin       io.Reader
	stdinHolder string
	stdinCond   *sync.Cond
}

// New returns a Multiplexer writing status output to out. Styling is
// enabled only when out is a TTY, mirroring the teacher's TTY
// detection before using any ANSI styling at all.
func New(out io.Writer) *Multiplexer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd())
	}
	m := &Multiplexer{
		out:   out,
		styled: styled,
		jobs:  map[string]*jobState{},
		stdin: os.Stdin,
	}
	m.stdinCond = sync.NewCond(&m.mu)
	return m
}

// Start registers a job as running and prints its "started" line.
func (m *Multiplexer) Start(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = &jobState{id: id, status: Running, phase: PhaseInProgress}
	m.order = append(m.order, id)
	fmt.Fprintln(m.out, m.style(runningStyle, plainRunning, "▶ "+id))
}

// Stdout appends a stdout line to id's buffer, or writes it straight
// through if id is the active job.
func (m *Multiplexer) Stdout(id, text string) { m.append(id, "stdout", text) }

// Stderr appends a stderr line to id's buffer, or writes it straight
// through if id is the active job.
func (m *Multiplexer) Stderr(id, text string) { m.append(id, "stderr", text) }

func (m *Multiplexer) append(id, stream, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	if id == m.active {
		fmt.Fprintln(m.out, m.style(mutedStyle, plainMuted, "  ["+stream+"] "+text))
		return
	}
	job.lines = append(job.lines, line{stream: stream, text: text})
}

// UpdateActive hands the "active" slot (live, unbuffered output) to
// id. Any output id already buffered while it was inactive is flushed
// immediately so the handoff never drops lines, and the previously
// active job (if any) reverts to buffering. AcquireStdin calls this
// automatically when a job is granted exclusive stdin, since that is
// the point an interactive job becomes the one the user is watching.
func (m *Multiplexer) UpdateActive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == id {
		return
	}
	m.active = id
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	for _, l := range job.lines {
		fmt.Fprintln(m.out, m.style(mutedStyle, plainMuted, "  ["+l.stream+"] "+l.text))
	}
	job.lines = nil
}

// ShowOutput controls whether Finish flushes a job's buffered lines.
type ShowOutput int

const (
	ShowNone ShowOutput = iota
	ShowOnFail
	ShowAlways
)

// Finish marks a job complete and renders its status line, flushing
// any output still buffered (i.e. everything if the job was never
// active) according to policy, then closes the job out.
func (m *Multiplexer) Finish(id string, status Status, err error, policy ShowOutput) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	job.status = status
	job.err = err
	job.phase = PhaseComplete
	lines := job.lines
	job.lines = nil
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()

	show := policy == ShowAlways || (policy == ShowOnFail && status == Failed)
	if show {
		for _, l := range lines {
			fmt.Fprintln(m.out, m.style(mutedStyle, plainMuted, "  ["+l.stream+"] "+l.text))
		}
	}

	icon, st, pst := iconFor(status)
	suffix := ""
	if err != nil {
		suffix = ": " + err.Error()
	}
	fmt.Fprintln(m.out, m.style(st, pst, icon+" "+id+" "+status.label()+suffix))

	m.mu.Lock()
	job.phase = PhaseClosed
	m.mu.Unlock()
}

func iconFor(status Status) (string, lipgloss.Style, *color.Color) {
	switch status {
	case Success, UpToDate:
		return "✓", successStyle, plainSuccess
	case Failed:
		return "✗", failStyle, plainFail
	case Skipped:
		return "·", mutedStyle, plainMuted
	default:
		return "…", runningStyle, plainRunning
	}
}

func (m *Multiplexer) style(styled lipgloss.Style, plain *color.Color, text string) string {
	if m.styled {
		return styled.Render(text)
	}
	return plain.Sprint(text)
}

// AcquireStdin blocks until id is the sole holder of the shared
// stdin, returning a reader scoped to this job, and makes id the
// active job so its output (in particular, any prompt it writes right
// before reading) streams live instead of sitting in a buffer the
// user can't see yet. Release must be called when the job no longer
// needs exclusive stdin access.
func (m *Multiplexer) AcquireStdin(ctx context.Context, id string) (io.Reader, error) {
	m.mu.Lock()
	for m.stdinHolder != "" {
		if ctx.Err() != nil {
			m.mu.Unlock()
			return nil, ctx.Err()
		}
		m.stdinCond.Wait()
	}
	m.stdinHolder = id
	m.mu.Unlock()
	m.UpdateActive(id)
	return m.stdin, nil
}

// ReleaseStdin relinquishes id's exclusive stdin hold, if it is the
// current holder, waking the next waiter.
func (m *Multiplexer) ReleaseStdin(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stdinHolder == id {
		m.stdinHolder = ""
		m.stdinCond.Broadcast()
	}
}

// Status returns the last known status of id.
func (m *Multiplexer) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Pending, false
	}
	return job.status, true
}

// JobPhase returns the output-buffering phase of id.
func (m *Multiplexer) JobPhase(id string) (Phase, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return PhaseClosed, false
	}
	return job.phase, true
}
