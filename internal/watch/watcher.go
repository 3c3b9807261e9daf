// Package watch follows a flat store's directory with fsnotify and reports
// documents changed or removed outside the wiki (an editor, git, rsync).
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/creolewiki/internal/checksum"
	"github.com/starford/creolewiki/internal/models"
)

// Tree is the flat store surface the watcher needs.
type Tree interface {
	Root() string
	KeyOf(path string) (string, bool)
	Get(ctx context.Context, key string) (string, bool, error)
	List(ctx context.Context) ([]models.PageMeta, error)
}

// Callback is called once per observed content change.
type Callback func(key string, deleted bool)

// Watcher reports document changes under a Tree's root.
type Watcher struct {
	tree      Tree
	cb        Callback
	logger    *slog.Logger
	reconcile time.Duration

	// seen maps key → checksum of the last reported content. Only Run's
	// goroutine touches it.
	seen map[string]string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithReconcileDelay sets how long after a rename the tree is rescanned.
func WithReconcileDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.reconcile = d
		}
	}
}

// New returns a watcher over tree calling cb for each change.
func New(tree Tree, cb Callback, opts ...Option) *Watcher {
	w := &Watcher{
		tree:      tree,
		cb:        cb,
		logger:    slog.Default(),
		reconcile: 200 * time.Millisecond,
		seen:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Writes whose content matches what was
// last reported are not reported again, so an atomic rewrite yields one
// change.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	root := w.tree.Root()
	if err := addDirsRecursive(fw, root); err != nil {
		return err
	}
	w.prime(ctx)
	w.logger.Info("watch: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(w.reconcile)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(w.reconcile)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			w.logger.Info("watch: stopped")
			return nil

		case <-reconcileCh:
			w.rescan(ctx)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						w.logger.Warn("watch: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					w.scanDir(ctx, ev.Name)
					continue
				}
			}

			key, ok := w.tree.KeyOf(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.check(ctx, key)
			case ev.Op&fsnotify.Remove != 0:
				w.removed(key)
			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path; the new one arrives as Create.
				w.removed(key)
				scheduleReconcile()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) prime(ctx context.Context) {
	metas, err := w.tree.List(ctx)
	if err != nil {
		w.logger.Warn("watch: initial list failed", slog.String("error", err.Error()))
		return
	}
	for _, m := range metas {
		if text, ok, err := w.tree.Get(ctx, m.Key); err == nil && ok {
			w.seen[m.Key] = checksum.Sum(text)
		}
	}
}

// check reports key when its content differs from the last report.
func (w *Watcher) check(ctx context.Context, key string) {
	text, ok, err := w.tree.Get(ctx, key)
	if err != nil {
		w.logger.Warn("watch: read failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if !ok {
		w.removed(key)
		return
	}
	sum := checksum.Sum(text)
	if w.seen[key] == sum {
		return
	}
	w.seen[key] = sum
	w.logger.Debug("watch: changed", slog.String("key", key))
	if w.cb != nil {
		w.cb(key, false)
	}
}

func (w *Watcher) removed(key string) {
	if _, ok := w.seen[key]; !ok {
		return
	}
	delete(w.seen, key)
	w.logger.Debug("watch: removed", slog.String("key", key))
	if w.cb != nil {
		w.cb(key, true)
	}
}

// rescan reconciles seen with the tree after renames.
func (w *Watcher) rescan(ctx context.Context) {
	metas, err := w.tree.List(ctx)
	if err != nil {
		w.logger.Warn("watch: rescan list failed", slog.String("error", err.Error()))
		return
	}
	present := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		present[m.Key] = struct{}{}
		w.check(ctx, m.Key)
	}
	for key := range w.seen {
		if _, ok := present[key]; !ok {
			w.removed(key)
		}
	}
}

func (w *Watcher) scanDir(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if key, ok := w.tree.KeyOf(p); ok {
			w.check(ctx, key)
		}
		return nil
	})
}

func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
}
