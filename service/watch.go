package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yaoapp/kun/log"

	"github.com/yaoapp/duan/docstore"
	"github.com/yaoapp/duan/errs"
)

// A burst of filesystem events collapses into one sync this long after
// the last event.
const syncDebounce = 2 * time.Second

const syncTimeout = time.Minute

// Watch mirrors filesystem changes under the store root into the repo.
// Blocks until a byte arrives on interrupt.
func (s *DocumentService) Watch(store *docstore.FS, interrupt chan uint8) error {
	events := make(chan string, 64)
	go s.debounce(store.ID(), events)

	err := store.Watch(func(event, path string) {
		select {
		case events <- path:
		default:
		}
	}, interrupt)
	close(events)
	return err
}

func (s *DocumentService) debounce(src string, events <-chan string) {
	timer := time.NewTimer(syncDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			timer.Reset(syncDebounce)
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
			if _, err := s.Sync(ctx, src); err != nil {
				log.Error("[Watch] sync %s: %s", src, err)
			}
			cancel()
		}
	}
}

// Schedule syncs the given store on a cron schedule. The returned cron
// is already started.
func (s *DocumentService) Schedule(spec, src string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if _, err := s.Sync(ctx, src); err != nil {
			log.Error("[Schedule] sync %s: %s", src, err)
		}
	})
	if err != nil {
		return nil, errs.New(errs.Validation, "invalid sync schedule %q: %s", spec, err.Error())
	}
	c.Start()
	log.Info("Scheduled sync of %s (%s)", src, spec)
	return c, nil
}
