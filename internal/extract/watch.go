package extract

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchSettle = 150 * time.Millisecond

// Watch re-extracts path whenever it is written or replaced and hands the
// result to onChange. Bursts of events within watchSettle collapse into one
// extraction. The watch ends when ctx is cancelled.
func (e Extractor) Watch(ctx context.Context, path string, onChange func(text string, err error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory; editors often save by rename.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()

		var settle *time.Timer
		fire := make(chan struct{}, 1)
		defer func() {
			if settle != nil {
				settle.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if settle != nil {
					settle.Stop()
				}
				settle = time.AfterFunc(watchSettle, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				text, err := e.ExtractFile(abs)
				onChange(text, err)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("Document watcher error: %v", err)
			}
		}
	}()
	return nil
}
