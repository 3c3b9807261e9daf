package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/creolewiki/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) cb(key string, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deleted {
		r.events = append(r.events, "deleted:"+key)
	} else {
		r.events = append(r.events, "changed:"+key)
	}
}

func (r *recorder) count(e string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, got := range r.events {
		if got == e {
			n++
		}
	}
	return n
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatcher(t *testing.T, flat *storage.Flat) *recorder {
	t.Helper()
	rec := &recorder{}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	w := New(flat, rec.cb, WithLogger(logger), WithReconcileDelay(50*time.Millisecond))
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func tempFlat(t *testing.T) *storage.Flat {
	t.Helper()
	flat, err := storage.NewFlat(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return flat
}

func TestWatcher_ExternalWriteReported(t *testing.T) {
	flat := tempFlat(t)
	rec := startWatcher(t, flat)

	_ = os.WriteFile(filepath.Join(flat.Root(), "pages", "new.wiki"), []byte("== New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("changed:new") > 0
	}, "expected changed:new")
}

func TestWatcher_HomeFile(t *testing.T) {
	flat := tempFlat(t)
	rec := startWatcher(t, flat)

	_ = os.WriteFile(filepath.Join(flat.Root(), "home.wiki"), []byte("home"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("changed:") > 0
	}, "expected home change")
}

func TestWatcher_AtomicPutReportedOnce(t *testing.T) {
	flat := tempFlat(t)
	rec := startWatcher(t, flat)

	if err := flat.Put(context.Background(), "once", "body"); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("changed:once") == 1
	}, "expected one change")
	time.Sleep(150 * time.Millisecond)
	if n := rec.count("changed:once"); n != 1 {
		t.Errorf("changes = %d, want 1", n)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	flat := tempFlat(t)
	rec := startWatcher(t, flat)

	sub := filepath.Join(flat.Root(), "pages", "sub")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "deep.wiki"), []byte("deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("changed:sub/deep") > 0
	}, "file in new subdir not reported")
}

func TestWatcher_DeleteReported(t *testing.T) {
	flat := tempFlat(t)
	_ = flat.Put(context.Background(), "del", "x")
	rec := startWatcher(t, flat)

	_ = os.Remove(filepath.Join(flat.Root(), "pages", "del.wiki"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("deleted:del") == 1
	}, "expected deleted:del")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	flat := tempFlat(t)
	_ = flat.Put(context.Background(), "old", "content")
	rec := startWatcher(t, flat)

	pages := filepath.Join(flat.Root(), "pages")
	_ = os.Rename(filepath.Join(pages, "old.wiki"), filepath.Join(pages, "renamed.wiki"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return rec.count("deleted:old") == 1 && rec.count("changed:renamed") == 1
	}, "rename: old should be deleted and new reported")
}

func TestWatcher_TempFilesIgnored(t *testing.T) {
	flat := tempFlat(t)
	rec := startWatcher(t, flat)

	_ = os.WriteFile(filepath.Join(flat.Root(), "pages", ".creolewiki-tmp-123"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(flat.Root(), "pages", "notes.txt"), []byte("x"), 0o644)
	time.Sleep(200 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("events = %v", rec.events)
	}
}
