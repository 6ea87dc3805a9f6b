package cli

import (
	"context"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/jackycchen/api-mock-platform/pkg/config"
)

// fileStamp identifies a file version for change detection.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func (a fileStamp) equal(b fileStamp) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

// configWatcher reloads rules and definitions when the config file or any
// definition source it names changes. Other settings need a restart.
type configWatcher struct {
	path   string
	stack  *stack
	log    *slog.Logger
	cfg    *config.Config
	stamps map[string]fileStamp
}

func newConfigWatcher(path string, cfg *config.Config, st *stack, log *slog.Logger) *configWatcher {
	w := &configWatcher{path: path, stack: st, log: log, cfg: cfg}
	w.stamps = w.snapshot()
	return w
}

// snapshot stats the config file and the definition sources of the last
// loaded config. Missing files are left out.
func (w *configWatcher) snapshot() map[string]fileStamp {
	files := []string{w.path}
	if sources, err := config.SourceFiles(w.cfg); err == nil {
		files = append(files, sources...)
	}

	stamps := make(map[string]fileStamp, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			continue
		}
		stamps[f] = fileStamp{modTime: info.ModTime(), size: info.Size()}
	}
	return stamps
}

// check reloads when something changed and reports whether new rules and
// definitions were published. An invalid config is logged and skipped; the
// running rules stay in place until the next change.
func (w *configWatcher) check() bool {
	current := w.snapshot()
	if maps.EqualFunc(current, w.stamps, fileStamp.equal) {
		return false
	}
	w.stamps = current

	cfg, _, err := loadConfig(w.path)
	if err != nil {
		w.log.Warn("config reload skipped", "path", w.path, "error", err)
		return false
	}
	if res := checkConfig(cfg); !res.IsValid() {
		w.log.Warn("config reload skipped", "path", w.path, "error", res.Error())
		return false
	}
	if err := w.stack.load(cfg); err != nil {
		w.log.Warn("config reload failed", "path", w.path, "error", err)
		return false
	}

	w.cfg = cfg
	w.stamps = w.snapshot()
	total, enabled := w.stack.rules.Count()
	w.log.Info("config reloaded",
		"path", w.path,
		"rules", total,
		"enabled", enabled,
		"definitions", w.stack.catalog.Len(),
	)
	return true
}

// run polls every interval until ctx ends.
func (w *configWatcher) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}
