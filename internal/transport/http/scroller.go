package http

import (
	"context"
	"errors"
	"sync"

	"lesson-progress-service/internal/domain"
)

var errViewerGone = errors.New("viewer disconnected")

// wsScroller asks the connected client to scroll. It only knows the anchors the
// client reported as mounted; any other anchor is not rendered yet.
type wsScroller struct {
	out *outbox

	mu      sync.RWMutex
	mounted map[string]struct{}
}

func newWSScroller(out *outbox) *wsScroller {
	return &wsScroller{out: out, mounted: make(map[string]struct{})}
}

func (s *wsScroller) mount(mounted, unmounted []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range mounted {
		s.mounted[id] = struct{}{}
	}
	for _, id := range unmounted {
		delete(s.mounted, id)
	}
}

func (s *wsScroller) ScrollTo(_ context.Context, anchorID string, offset int) error {
	s.mu.RLock()
	_, ok := s.mounted[anchorID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrAnchorNotMounted
	}
	if !s.out.offer(outboundMessage[any]{Type: "scroll", Payload: scrollPayload{AnchorID: anchorID, Offset: &offset}}) {
		return errViewerGone
	}
	return nil
}
