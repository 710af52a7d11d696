package tracker

import "time"

const secondsPerDay = 86400

// Prune drops every event older than maxAgeDays from the index and removes
// recipients left without events. It mutates idx in place and returns it.
// Retention is applied lazily on every write rather than by a background
// sweep, so storage never grows unbounded without needing a scheduler.
func Prune(idx Index, maxAgeDays int, now time.Time) Index {
	cutoff := now.Unix() - int64(maxAgeDays)*secondsPerDay
	for id, events := range idx {
		kept := events[:0]
		for _, e := range events {
			if e.Timestamp > cutoff {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(idx, id)
			continue
		}
		idx[id] = kept
	}
	return idx
}
