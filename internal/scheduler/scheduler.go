package scheduler

import (
	"context"

	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/worker"
)

func (s *implScheduler) Register(workers ...*worker.Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = append(s.pool[:0:0], workers...)
}

func (s *implScheduler) RequestAssignment() (*worker.Worker, bool) {
	s.mu.Lock()
	w := s.freeLocked(nil)
	s.mu.Unlock()
	if w == nil {
		s.logger.Warn(context.Background(), "No free workers (pool size %d)", len(s.pool))
		s.metrics.AssignmentMisses.Inc()
		return nil, false
	}
	return w, true
}

// freeLocked returns the first reachable worker in pool order that is
// neither bound, running a task nor in skip.
func (s *implScheduler) freeLocked(skip map[string]bool) *worker.Worker {
	for _, w := range s.pool {
		if skip[w.ID] {
			continue
		}
		if _, bound := s.byWorker[w.ID]; bound {
			continue
		}
		if w.Busy() || !w.Reachable() {
			continue
		}
		return w
	}
	return nil
}

func (s *implScheduler) OnSessionOpened(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queue {
		if q.sessionID == sessionID {
			return
		}
	}
	s.queue = append(s.queue, queued{sessionID: sessionID, since: s.now()})
	s.updateGaugesLocked()
}

func (s *implScheduler) ScheduleAll(ctx context.Context) []Assignment {
	// a worker that failed to bind is not offered again in this pass
	failed := make(map[string]bool)
	var bound []Assignment
	for {
		claims := s.claim(failed)
		if len(claims) == 0 {
			break
		}
		for _, c := range claims {
			if err := s.bind(ctx, c.SessionID, c.worker); err != nil {
				s.logger.Error(ctx, "Failed to bind worker %s to session %s: %v", c.WorkerID, c.SessionID, err)
				s.unbind(c.SessionID, c.WorkerID)
				failed[c.WorkerID] = true
				continue
			}
			s.logger.Info(ctx, "Worker %s assigned to session %s", c.WorkerID, c.SessionID)
			s.metrics.Assignments.Inc()
			bound = append(bound, c.Assignment)
		}
	}

	s.mu.Lock()
	waiting := len(s.queue) - len(s.bySess)
	s.mu.Unlock()
	if waiting > 0 {
		s.logger.Warn(ctx, "No free workers, %d session(s) waiting", waiting)
		s.metrics.AssignmentMisses.Add(float64(waiting))
	}
	return bound
}

type claim struct {
	Assignment
	worker *worker.Worker
}

// claim reserves a free worker for every queued session lacking one. The
// reservation happens under the lock so concurrent passes never double-book.
func (s *implScheduler) claim(skip map[string]bool) []claim {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claims []claim
	for _, q := range s.queue {
		if _, ok := s.bySess[q.sessionID]; ok {
			continue
		}
		w := s.freeLocked(skip)
		if w == nil {
			break
		}
		s.bySess[q.sessionID] = w
		s.byWorker[w.ID] = q.sessionID
		claims = append(claims, claim{Assignment: Assignment{SessionID: q.sessionID, WorkerID: w.ID}, worker: w})
	}
	s.updateGaugesLocked()
	return claims
}

func (s *implScheduler) unbind(sessionID, workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byWorker[workerID] == sessionID {
		delete(s.byWorker, workerID)
		delete(s.bySess, sessionID)
	}
	s.updateGaugesLocked()
}

func (s *implScheduler) Release(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessionID, ok := s.byWorker[workerID]
	if !ok {
		return
	}
	delete(s.byWorker, workerID)
	delete(s.bySess, sessionID)
	s.removeLocked(sessionID)
	s.updateGaugesLocked()
}

func (s *implScheduler) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.bySess[sessionID]; ok {
		delete(s.byWorker, w.ID)
		delete(s.bySess, sessionID)
	}
	s.removeLocked(sessionID)
	s.updateGaugesLocked()
}

func (s *implScheduler) removeLocked(sessionID string) {
	for i, q := range s.queue {
		if q.sessionID == sessionID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *implScheduler) WorkerFor(sessionID string) (*worker.Worker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.bySess[sessionID]
	return w, ok
}

func (s *implScheduler) Pending() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Pending
	for _, q := range s.queue {
		if _, ok := s.bySess[q.sessionID]; ok {
			continue
		}
		out = append(out, Pending{SessionID: q.sessionID, Since: q.since})
	}
	return out
}

func (s *implScheduler) Workers() []models.WorkerInfo {
	s.mu.Lock()
	pool := append([]*worker.Worker(nil), s.pool...)
	bound := make(map[string]string, len(s.byWorker))
	for k, v := range s.byWorker {
		bound[k] = v
	}
	s.mu.Unlock()

	out := make([]models.WorkerInfo, 0, len(pool))
	for _, w := range pool {
		info := w.Info()
		if sid, ok := bound[w.ID]; ok {
			info.Busy = true
			info.SessionID = sid
		}
		out = append(out, info)
	}
	return out
}

func (s *implScheduler) updateGaugesLocked() {
	s.metrics.WorkersBusy.Set(float64(len(s.byWorker)))
	s.metrics.PendingSessions.Set(float64(len(s.queue) - len(s.bySess)))
}
