package rtsp

import (
	"sync"

	"XCam/internal/frame"
)

// sessionRegistry is the only structure touched by more than one task
// family: the acceptor adds, connection loops remove, fan-out pumps
// iterate. One mutex guards membership and the per-iteration timestamp
// advance; it is never held across anything that can block longer than
// a best-effort socket send.
type sessionRegistry struct {
	mutex    sync.Mutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session),
	}
}

func (r *sessionRegistry) add(s *session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sessions[s.id] = s
}

func (r *sessionRegistry) remove(s *session) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.sessions, s.id)
}

func (r *sessionRegistry) count() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}

// snapshot returns the current sessions, for shutdown teardown.
func (r *sessionRegistry) snapshot() []*session {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// broadcast visits every session currently playing the given media type
// and calls send for it. A failing send is counted and skipped; it never
// aborts delivery to the remaining sessions. After the visit, every
// visited transport's timestamp advances by its nominal inter-frame
// increment, still under the registry lock, so sequence/timestamp
// ordering per transport is single-writer.
func (r *sessionRegistry) broadcast(media frame.MediaType, send func(*session, *mediaTransport) error) (delivered, failed int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var visited []*session
	for _, s := range r.sessions {
		s.mutex.Lock()
		t := s.playingTransportLocked(media)
		if t == nil {
			s.mutex.Unlock()
			continue
		}
		err := send(s, t)
		s.mutex.Unlock()

		if err != nil {
			failed++
		} else {
			delivered++
		}
		visited = append(visited, s)
	}

	for _, s := range visited {
		s.mutex.Lock()
		if t := s.playingTransportLocked(media); t != nil {
			t.timestamp += t.clockIncrement
		}
		s.mutex.Unlock()
	}
	return delivered, failed
}
