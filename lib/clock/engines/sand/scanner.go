package sand

import (
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock"
	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand/internal"
)

// scanner is the main detection loop
// WARNING: this method should never be called directly! It is started once by New()
//
// Thread-safety: This function is not thread-safe!
func (s *sandImpl[K]) scanner() {
	defer s.wg.Done()

	timer := time.NewTimer(s.opts.RefreshInterval)
	defer timer.Stop()

	for {
		// 1. shutdown is only observed here, at the start of a cycle
		if s.life.shutdownRequested() {
			s.life.setState(StateShuttingDown)
			if err := s.dispatcher.submit(internal.Handle[K]{}, clock.EventShutdown); err != nil {
				log.Errorf("[%s] could not enqueue shutdown event: %v", s.opts.Name, err)
			}
			s.life.setState(StateStopped)
			log.Infof("[%s] scanner stopped", s.opts.Name)
			return
		}

		// 2. detect
		batch := s.scan()

		// 3. hand off, dispatch health never stops detection
		for _, e := range batch {
			if err := s.dispatcher.submit(e.Handle(), clock.EventTimeout); err != nil {
				log.Warningf("[%s] timeout for %v not dispatched: %v", s.opts.Name, e.Key(), err)
			}
		}

		// 4. sleep (a shutdown request cuts the sleep short)
		timer.Reset(s.opts.RefreshInterval)
		select {
		case <-timer.C:
		case <-s.life.Done():
		}

		// 5. forget the entries dispatched in this cycle
		s.cleanup(batch)
	}
}

// scan walks the table once and marks every timed out entry as expired.
// It returns the entries that were marked by this call.
func (s *sandImpl[K]) scan() []*internal.Entry[K] {
	start := time.Now()

	/*
		Note: now is read once per cycle so that all entries are judged against the same instant.
		Entries touched during the scan have a newer last update than now and are skipped.
	*/
	now := s.now()
	timeout := uint64(s.opts.TimeoutDuration)

	var batch []*internal.Entry[K]
	s.table.Range(func(_ K, e *internal.Entry[K]) bool {
		// TryExpire re-validates the token it read, a concurrent touch makes it return false
		if e.TryExpire(now, timeout) {
			batch = append(batch, e)
		}
		return true
	})

	s.metrics.scanCycles.Inc()
	s.metrics.timeouts.Add(len(batch))
	s.metrics.scanDuration.UpdateDuration(start)

	if len(batch) > 0 {
		log.Debugf("[%s] scan found %d timed out keys in %s", s.opts.Name, len(batch), time.Since(start))
	}
	return batch
}

// cleanup removes the dispatched entries from the table.
// A key that was touched again in the meantime holds a new entry and is kept.
func (s *sandImpl[K]) cleanup(batch []*internal.Entry[K]) {
	for _, e := range batch {
		s.table.Cleanup(e.Key(), e)
	}
}
