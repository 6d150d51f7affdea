package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tangthinker/foldersnap/internal/config"
)

var fixedNow = time.Date(2026, 1, 2, 13, 4, 5, 0, time.Local)

func fixedClock() time.Time { return fixedNow }

type fakeRecorder struct {
	mu       sync.Mutex
	copies   []CopyResult
	finished string
}

func (f *fakeRecorder) StartRun(label, target string, started time.Time) (string, error) {
	return "run-1", nil
}

func (f *fakeRecorder) RecordCopy(runID string, result CopyResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, result)
	return nil
}

func (f *fakeRecorder) FinishRun(runID string, finished time.Time, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = reason
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.copies)
}

func runConfig(target string, sources ...config.Folder) *config.RunConfig {
	cfg := &config.RunConfig{Folders: []config.Folder{{Path: target, Role: config.Target}}}
	cfg.Folders = append(cfg.Folders, sources...)
	return cfg
}

func source(path string, frequency int) config.Folder {
	return config.Folder{Path: path, Role: config.Source, Frequency: frequency}
}

func TestScheduler_DocsScenario(t *testing.T) {
	src := docsTree(t)
	target := t.TempDir()
	s := NewScheduler(runConfig(target, source(src, 2)),
		WithCopier(denyingCopier("b.txt")), WithClock(fixedClock))

	r, err := s.prepare("run")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	dest := filepath.Join(target, "run", "Docs")
	journal := filepath.Join(target, "run", "Journal_run", "Docs_130405.txt")

	if err := s.iterate(r); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if exists(filepath.Join(dest, "a.txt")) {
		t.Fatal("copied after one tick")
	}
	if got := s.Status().Lines(); len(got) != 1 || got[0] != "Docs — In process." {
		t.Errorf("status after one tick = %v", got)
	}

	if err := s.iterate(r); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if !exists(filepath.Join(dest, "a.txt")) || !exists(filepath.Join(dest, "notes", "c.txt")) {
		t.Fatal("healthy files were not copied")
	}
	if exists(filepath.Join(dest, "b.txt")) {
		t.Error("b.txt should not be copied")
	}

	text := readFile(t, journal)
	if strings.Count(text, "from: ") != 1 {
		t.Errorf("journal has more than one record:\n%s", text)
	}
	if !strings.HasPrefix(text, "AccessDenied:") || !strings.Contains(text, "b.txt") {
		t.Errorf("unexpected journal:\n%s", text)
	}

	st := s.Status().Folders[0]
	if st.Remaining != 2 || st.LastErrors != 1 {
		t.Errorf("status = %+v", st)
	}
	if got := st.Line(); got != "Docs — Back up after: 00:00:02" {
		t.Errorf("line = %q", got)
	}
}

func TestScheduler_OneCopyPerFrequency(t *testing.T) {
	fast := filepath.Join(t.TempDir(), "fast")
	slow := filepath.Join(t.TempDir(), "slow")
	writeFile(t, filepath.Join(fast, "f.txt"), "f")
	writeFile(t, filepath.Join(slow, "s.txt"), "s")

	rec := &fakeRecorder{}
	s := NewScheduler(runConfig(t.TempDir(), source(fast, 3), source(slow, 5)),
		WithRecorder(rec), WithClock(fixedClock))
	r, err := s.prepare("run")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	r.id = "run-1"

	for i := 0; i < 15; i++ {
		if err := s.iterate(r); err != nil {
			t.Fatalf("iterate %d: %v", i, err)
		}
	}

	counts := map[string]int{}
	for _, c := range rec.copies {
		counts[c.Folder]++
		if c.Journal != "" {
			t.Errorf("journal %s for clean copy", c.Journal)
		}
	}
	if counts["fast"] != 5 || counts["slow"] != 3 {
		t.Errorf("copies = %v, want fast:5 slow:3", counts)
	}
}

func TestScheduler_NoJournalForCleanCopy(t *testing.T) {
	src := docsTree(t)
	target := t.TempDir()
	s := NewScheduler(runConfig(target, source(src, 1)), WithClock(fixedClock))
	r, err := s.prepare("run")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := s.iterate(r); err != nil {
		t.Fatalf("iterate: %v", err)
	}

	entries, err := os.ReadDir(r.journalDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("journal directory has %d entries, want 0", len(entries))
	}
}

func TestScheduler_JournalFailureStopsRun(t *testing.T) {
	src := docsTree(t)
	rec := &fakeRecorder{}
	s := NewScheduler(runConfig(t.TempDir(), source(src, 1)),
		WithCopier(denyingCopier("a.txt")), WithRecorder(rec), WithClock(fixedClock))

	r, err := s.prepare("run")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	r.id = "run-1"
	// 日志目录被普通文件占用，写入必然失败
	if err := os.RemoveAll(r.journalDir); err != nil {
		t.Fatal(err)
	}
	writeFile(t, r.journalDir, "not a directory")

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	s.running.Store(true)
	s.loop(ctx, r)

	if r.err == nil {
		t.Fatal("expected run error")
	}
	if s.State() != Idle || s.Status().Error == "" {
		t.Errorf("state %s, status error %q", s.State(), s.Status().Error)
	}
	if rec.finished == "" || rec.finished == "stopped" {
		t.Errorf("finish reason = %q", rec.finished)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	src := docsTree(t)
	target := t.TempDir()
	rec := &fakeRecorder{}
	s := NewScheduler(runConfig(target, source(src, 1)),
		WithInterval(5*time.Millisecond), WithRecorder(rec))

	if err := s.Start(context.Background(), "run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background(), "again"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for rec.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("no copies were made")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if s.State() != Idle {
		t.Errorf("state = %s, want idle", s.State())
	}
	if rec.finished != "stopped" {
		t.Errorf("finish reason = %q", rec.finished)
	}
	if got := readFile(t, filepath.Join(target, "run", "Docs", "a.txt")); got != "alpha" {
		t.Errorf("a.txt = %q", got)
	}
}

func TestScheduler_StopDuringCopyFinishesCopy(t *testing.T) {
	src := t.TempDir()
	big := strings.Repeat("0123456789abcdef", 16*1024)
	writeFile(t, filepath.Join(src, "a.bin"), big)
	writeFile(t, filepath.Join(src, "b.txt"), "bravo")
	writeFile(t, filepath.Join(src, "sub", "c.txt"), "charlie")

	// 第一个文件打开时阻塞，直到 Stop 已被调用
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c := NewCopier()
	c.open = func(name string) (*os.File, error) {
		once.Do(func() {
			close(entered)
			<-release
		})
		return os.Open(name)
	}

	const interval = 500 * time.Millisecond
	target := t.TempDir()
	rec := &fakeRecorder{}
	s := NewScheduler(runConfig(target, source(src, 1)),
		WithCopier(c), WithInterval(interval), WithRecorder(rec))
	if err := s.Start(context.Background(), "run"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("copy never started")
	}
	s.Stop()
	released := time.Now()
	close(release)

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if elapsed := time.Since(released); elapsed >= interval {
		t.Errorf("stop took %v, want less than one tick (%v)", elapsed, interval)
	}

	dest := filepath.Join(target, "run", filepath.Base(src))
	if got := readFile(t, filepath.Join(dest, "a.bin")); got != big {
		t.Errorf("a.bin has %d bytes, want %d", len(got), len(big))
	}
	if got := readFile(t, filepath.Join(dest, "b.txt")); got != "bravo" {
		t.Errorf("b.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dest, "sub", "c.txt")); got != "charlie" {
		t.Errorf("sub/c.txt = %q", got)
	}
	if rec.count() != 1 {
		t.Errorf("got %d copies after stop, want 1", rec.count())
	}
}

func TestScheduler_FinalStatusPublishedBeforeIdle(t *testing.T) {
	var (
		s           *Scheduler
		mu          sync.Mutex
		sawIdle     bool
		stateAtIdle State
	)
	s = NewScheduler(runConfig(t.TempDir(), source(docsTree(t), 60)),
		WithInterval(time.Hour),
		WithStatusFunc(func(st Status) {
			if st.State != Idle {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			sawIdle = true
			stateAtIdle = s.State()
		}))

	if err := s.Start(context.Background(), "run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !sawIdle {
		t.Fatal("no final snapshot published")
	}
	if stateAtIdle != Running {
		t.Errorf("scheduler was %s while publishing the final snapshot, want running", stateAtIdle)
	}
	if s.State() != Idle || s.Status().State != Idle {
		t.Errorf("after Wait: state %s, status %s", s.State(), s.Status().State)
	}
}

func TestScheduler_ContextCancelStops(t *testing.T) {
	s := NewScheduler(runConfig(t.TempDir(), source(docsTree(t), 60)), WithInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, "run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StartErrors(t *testing.T) {
	target := t.TempDir()

	s := NewScheduler(runConfig(target))
	if err := s.Start(context.Background(), "run"); !errors.Is(err, ErrNoSources) {
		t.Errorf("Start without sources = %v", err)
	}

	s = NewScheduler(runConfig(target, source(docsTree(t), 1)))
	for _, label := range []string{"", "..", "a/b"} {
		if err := s.Start(context.Background(), label); !errors.Is(err, ErrInvalidLabel) {
			t.Errorf("Start(%q) = %v, want ErrInvalidLabel", label, err)
		}
	}

	blocked := filepath.Join(t.TempDir(), "file")
	writeFile(t, blocked, "x")
	s = NewScheduler(runConfig(blocked, source(docsTree(t), 1)))
	if err := s.Start(context.Background(), "run"); err == nil {
		t.Error("Start below a regular file should fail")
	}
	if s.State() != Idle {
		t.Errorf("state = %s after failed start", s.State())
	}
	if err := s.Wait(); err != nil {
		t.Errorf("Wait without a run = %v", err)
	}
}

func TestNewLabel(t *testing.T) {
	if got := NewLabel(fixedNow); got != "02012026_130405" {
		t.Errorf("NewLabel() = %q", got)
	}
}
