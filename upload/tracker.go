package upload

import (
	"context"
	"sync"
	"time"

	"bioweaver/api"
	"bioweaver/log"
)

// DefaultInterval is the fixed poll cadence for transcription watches.
const DefaultInterval = 3 * time.Second

// ChapterSource is the slice of the API client the tracker needs.
type ChapterSource interface {
	GetChapters(ctx context.Context) ([]api.Chapter, error)
}

// Tracker watches uploaded chapters until the server produces text for
// them. At most one watch is active per chapter id: starting a new one
// cancels the previous watch first, so a chapter never fires two
// completion signals.
type Tracker struct {
	src      ChapterSource
	interval time.Duration

	mu      sync.Mutex
	watches map[int64]*watch
}

type watch struct {
	cancel context.CancelFunc
}

// NewTracker builds a Tracker polling src every interval; interval <= 0
// falls back to DefaultInterval.
func NewTracker(src ChapterSource, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		src:      src,
		interval: interval,
		watches:  make(map[int64]*watch),
	}
}

// Watch polls the chapter feed at a fixed cadence until the chapter's
// transcript or polished text is non-empty, then delivers the chapter
// once and closes the channel. The first poll fires one full interval
// after the call. A fetch failure during polling is swallowed and the
// loop keeps going at the same cadence — no backoff, no escalation;
// cancelling ctx (or Cancel) is the only way out short of completion.
// The channel closes without a value when the watch is cancelled or
// superseded.
func (t *Tracker) Watch(ctx context.Context, chapterID int64) <-chan api.Chapter {
	out := make(chan api.Chapter, 1)
	wctx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	t.mu.Lock()
	if prev, ok := t.watches[chapterID]; ok {
		prev.cancel()
	}
	t.watches[chapterID] = w
	t.mu.Unlock()

	go func() {
		defer close(out)
		defer cancel()
		defer t.forget(chapterID, w)

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		polls := 0
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
			}
			polls++
			chapters, err := t.src.GetChapters(wctx)
			if err != nil {
				if wctx.Err() != nil {
					return
				}
				log.Warnf("chapter %d poll %d failed: %v", chapterID, polls, err)
				continue
			}
			for _, ch := range chapters {
				if ch.ID == chapterID && ch.HasText() {
					log.WatchDone(chapterID, polls, ch.PolishedText != "")
					out <- ch
					return
				}
			}
		}
	}()

	return out
}

// Cancel stops the active watch for chapterID, if any.
func (t *Tracker) Cancel(chapterID int64) {
	t.mu.Lock()
	w, ok := t.watches[chapterID]
	if ok {
		delete(t.watches, chapterID)
	}
	t.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// Close cancels every active watch.
func (t *Tracker) Close() {
	t.mu.Lock()
	watches := t.watches
	t.watches = make(map[int64]*watch)
	t.mu.Unlock()
	for _, w := range watches {
		w.cancel()
	}
}

// forget removes the registration unless a later watch already took
// the slot.
func (t *Tracker) forget(chapterID int64, w *watch) {
	t.mu.Lock()
	if t.watches[chapterID] == w {
		delete(t.watches, chapterID)
	}
	t.mu.Unlock()
}
