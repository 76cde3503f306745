// internal/service/contacts.go
package service

import (
	"sync"
	"time"
)

// contactLog tracks the last successful send per (customer, campaign),
// seeded from send history and updated as the run sends. Guarded
// because campaigns are processed in parallel within a run.
type contactLog struct {
	mu sync.Mutex
	m  map[int]map[int]time.Time // customer -> campaign -> last sent
}

func newContactLog(seed map[int]map[int]time.Time) *contactLog {
	if seed == nil {
		seed = map[int]map[int]time.Time{}
	}
	return &contactLog{m: seed}
}

func (l *contactLog) record(customerID, campaignID int, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	byCamp := l.m[customerID]
	if byCamp == nil {
		byCamp = map[int]time.Time{}
		l.m[customerID] = byCamp
	}
	if t.After(byCamp[campaignID]) {
		byCamp[campaignID] = t
	}
}

// lastOther returns the most recent contact from any campaign except
// the given one. The cooldown floor applies across campaigns; a
// campaign's own cadence is governed by its step delays.
func (l *contactLog) lastOther(customerID, campaignID int) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var last time.Time
	for camp, t := range l.m[customerID] {
		if camp != campaignID && t.After(last) {
			last = t
		}
	}
	return last, !last.IsZero()
}

// anySnapshot flattens to last-contact-across-all-campaigns, the shape
// the segment evaluator's recently-contacted exclusion wants.
func (l *contactLog) anySnapshot() map[int]time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]time.Time, len(l.m))
	for cust, byCamp := range l.m {
		var last time.Time
		for _, t := range byCamp {
			if t.After(last) {
				last = t
			}
		}
		if !last.IsZero() {
			out[cust] = last
		}
	}
	return out
}
