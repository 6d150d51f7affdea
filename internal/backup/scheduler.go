package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tangthinker/foldersnap/internal/config"
)

// LabelLayout formats the default run label (ddMMyyyy_HHmmss).
const LabelLayout = "02012006_150405"

var (
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNoSources      = errors.New("no source folders configured")
	ErrInvalidLabel   = errors.New("invalid run label")
)

// NewLabel returns the default run label for t.
func NewLabel(t time.Time) string {
	return t.Format(LabelLayout)
}

// CopyResult describes one finished folder copy.
type CopyResult struct {
	Folder   string
	Source   string
	Started  time.Time
	Duration time.Duration
	Errors   int
	Journal  string // empty when the copy had no errors
}

// Recorder keeps a history of runs. Its failures are logged and never stop a run.
type Recorder interface {
	StartRun(label, target string, started time.Time) (string, error)
	RecordCopy(runID string, result CopyResult) error
	FinishRun(runID string, finished time.Time, reason string) error
}

// ChangeCounter reports filesystem changes seen under a source folder since
// its last copy.
type ChangeCounter interface {
	Pending(path string) int64
	Reset(path string)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period. The default is one second.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

func WithChangeCounter(c ChangeCounter) Option {
	return func(s *Scheduler) { s.changes = c }
}

// WithStatusFunc registers a callback invoked from the worker after every
// published snapshot.
func WithStatusFunc(fn func(Status)) Option {
	return func(s *Scheduler) { s.onStatus = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithCopier(c *Copier) Option {
	return func(s *Scheduler) { s.copier = c }
}

// Scheduler 按各源目录的频率定期复制到目标目录
type Scheduler struct {
	cfg      *config.RunConfig
	interval time.Duration
	copier   *Copier
	journal  *Journal
	recorder Recorder
	changes  ChangeCounter
	onStatus func(Status)
	now      func() time.Time

	running atomic.Bool
	status  atomic.Pointer[Status]

	mu      sync.Mutex
	current *run
}

// run 单次运行的上下文
type run struct {
	label      string
	target     string
	root       string
	journalDir string
	id         string
	folders    []*folderState

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

type folderState struct {
	name       string
	path       string
	dest       string
	timer      *Timer
	lastCopy   time.Time
	lastErrors int
}

// NewScheduler 创建调度器
func NewScheduler(cfg *config.RunConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		interval: time.Second,
		copier:   NewCopier(),
		journal:  NewJournal(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.status.Store(&Status{State: Idle})
	return s
}

// Start prepares the run directories and launches the worker. Setup
// failures are returned and the run never begins.
func (s *Scheduler) Start(ctx context.Context, label string) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	r, err := s.prepare(label)
	if err != nil {
		s.running.Store(false)
		return err
	}

	if s.recorder != nil {
		id, err := s.recorder.StartRun(r.label, r.target, s.now())
		if err != nil {
			log.Error().Err(err).Str("label", label).Msg("failed to record run start")
		}
		r.id = id
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	log.Info().Str("label", label).Str("root", r.root).Int("sources", len(r.folders)).Msg("backup run started")
	s.publish(r, Running, "")

	go s.loop(ctx, r)
	return nil
}

// prepare 创建运行目录、日志目录以及每个源目录对应的目标目录
func (s *Scheduler) prepare(label string) (*run, error) {
	if err := checkLabel(label); err != nil {
		return nil, err
	}
	if s.cfg == nil || len(s.cfg.Sources()) == 0 {
		return nil, ErrNoSources
	}

	target := s.cfg.Target().Path
	r := &run{
		label:      label,
		target:     target,
		root:       filepath.Join(target, label),
		journalDir: JournalDir(filepath.Join(target, label), label),
	}

	if err := os.MkdirAll(r.journalDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	for _, f := range s.cfg.Sources() {
		st := &folderState{
			name:  f.Name(),
			path:  f.Path,
			dest:  filepath.Join(r.root, f.Name()),
			timer: NewTimer(f.Frequency),
		}
		if err := os.MkdirAll(st.dest, 0755); err != nil {
			return nil, fmt.Errorf("failed to create folder directory: %w", err)
		}
		r.folders = append(r.folders, st)
	}
	return r, nil
}

func checkLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context, r *run) {
	defer close(r.done)

	reason := "stopped"
	for {
		if err := s.iterate(r); err != nil {
			log.Error().Err(err).Str("label", r.label).Msg("backup run aborted")
			r.err = err
			reason = err.Error()
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(s.interval):
			continue
		}
		break
	}

	r.cancel()
	if s.recorder != nil && r.id != "" {
		if err := s.recorder.FinishRun(r.id, s.now(), reason); err != nil {
			log.Error().Err(err).Str("run", r.id).Msg("failed to record run finish")
		}
	}

	errText := ""
	if r.err != nil {
		errText = r.err.Error()
	}
	// 最终快照须在释放 running 之前发布
	s.publish(r, Idle, errText)
	s.running.Store(false)
	log.Info().Str("label", r.label).Str("reason", reason).Msg("backup run finished")
}

// iterate 执行一次轮询：计时、复制到期的目录、发布状态
func (s *Scheduler) iterate(r *run) error {
	for _, f := range r.folders {
		f.timer.Tick()
	}

	for _, f := range r.folders {
		if !f.timer.Due() {
			continue
		}
		err := s.backup(r, f)
		f.timer.Reset()
		if err != nil {
			return err
		}
	}

	s.publish(r, Running, "")
	return nil
}

func (s *Scheduler) backup(r *run, f *folderState) error {
	started := s.now()
	if s.changes != nil {
		s.changes.Reset(f.path)
	}
	log.Debug().Str("folder", f.name).Str("dest", f.dest).Msg("copy started")

	report := s.copier.Copy(f.path, f.dest)
	f.lastCopy = started
	f.lastErrors = report.Len()

	result := CopyResult{
		Folder:   f.name,
		Source:   f.path,
		Started:  started,
		Duration: s.now().Sub(started),
		Errors:   report.Len(),
	}

	var journalErr error
	if !report.Empty() {
		result.Journal = s.journal.Path(r.journalDir, f.name, s.now())
		log.Warn().Str("folder", f.name).Int("errors", report.Len()).Str("journal", result.Journal).Msg("copy finished with errors")
		if err := s.journal.Write(result.Journal, report); err != nil {
			journalErr = fmt.Errorf("failed to journal copy of %s: %w", f.name, err)
		}
	} else {
		log.Info().Str("folder", f.name).Dur("took", result.Duration).Msg("copy finished")
	}

	if s.recorder != nil && r.id != "" {
		if err := s.recorder.RecordCopy(r.id, result); err != nil {
			log.Error().Err(err).Str("folder", f.name).Msg("failed to record copy")
		}
	}
	return journalErr
}

func (s *Scheduler) publish(r *run, state State, errText string) {
	st := &Status{
		Label:   r.label,
		State:   state,
		Folders: make([]FolderStatus, 0, len(r.folders)),
		Error:   errText,
	}
	for _, f := range r.folders {
		fs := FolderStatus{
			Name:       f.name,
			Path:       f.path,
			Remaining:  f.timer.Remaining(),
			Frequency:  f.timer.Frequency(),
			InProcess:  f.timer.Remaining() <= 1,
			LastCopy:   f.lastCopy,
			LastErrors: f.lastErrors,
		}
		if s.changes != nil {
			fs.PendingChanges = s.changes.Pending(f.path)
		}
		st.Folders = append(st.Folders, fs)
	}
	s.status.Store(st)

	if s.onStatus != nil {
		s.onStatus(*st)
	}
}

// Stop requests a cooperative stop. The current copy, if any, completes first.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

// Wait blocks until the worker exits and returns the run error, if any.
func (s *Scheduler) Wait() error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	<-r.done
	return r.err
}

// Status returns the latest published snapshot.
func (s *Scheduler) Status() Status {
	return *s.status.Load()
}

func (s *Scheduler) State() State {
	if s.running.Load() {
		return Running
	}
	return Idle
}
