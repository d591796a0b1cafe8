package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"lesson-progress-service/internal/app"
	"lesson-progress-service/internal/domain"
	"lesson-progress-service/internal/logger"
)

type WSHandler struct {
	service  *app.LessonService
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LessonService, log *logger.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     logger.OrNop(log).With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type nodePayload struct {
	NodeID    string `json:"nodeId"`
	Completed *bool  `json:"completed"`
}

type sectionPayload struct {
	SectionID    string `json:"sectionId"`
	SubsectionID string `json:"subsectionId"`
	Completed    *bool  `json:"completed"`
}

type visibilityPayload struct {
	Samples []domain.Visibility `json:"samples"`
}

type anchorsPayload struct {
	Mounted   []string `json:"mounted"`
	Unmounted []string `json:"unmounted"`
}

type scrollPayload struct {
	AnchorID string `json:"anchorId"`
	Offset   *int   `json:"offset,omitempty"`
}

type scrollProgressPayload struct {
	Percent int `json:"percent"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into a lesson session.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	lessonID := r.URL.Query().Get("lessonId")
	if lessonID == "" {
		http.Error(w, "missing lessonId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 32)
	out := &outbox{send: send}
	scroller := newWSScroller(out)

	// The session outlives this request's context.
	ctx := context.WithoutCancel(r.Context())
	session, release, err := h.service.Acquire(ctx, lessonID, scroller)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer release()

	updates, cancel := session.Subscribe()
	defer cancel()

	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "lesson_id", lessonID, "error", err)
				// unblock the read loop
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				for _, msg := range toOutbound(update) {
					if !out.push(msg, closeSignals) {
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	session.RestorePosition()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.dispatch(ctx, session, scroller, inbound); !ok {
			out.push(msg, closeSignals)
		}
	}

	close(closeSignals)
	<-updatesDone
	out.close()
	<-writerDone
}

// dispatch applies one inbound message. It returns an error message and false
// when the message was rejected.
func (h *WSHandler) dispatch(ctx context.Context, session *app.LessonSession, scroller *wsScroller, inbound inboundMessage) (outboundMessage[any], bool) {
	reject := func(message string) (outboundMessage[any], bool) {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}, false
	}

	switch inbound.Type {
	case "mark", "toggle", "markUpTo":
		var p nodePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.NodeID == "" {
			return reject("invalid " + inbound.Type + " payload")
		}
		if !session.Outline().HasNode(p.NodeID) {
			return reject(domain.ErrNodeNotFound.Error())
		}
		switch inbound.Type {
		case "mark":
			completed := true
			if p.Completed != nil {
				completed = *p.Completed
			}
			session.MarkNode(ctx, p.NodeID, completed)
		case "toggle":
			session.ToggleNode(ctx, p.NodeID)
		default:
			session.MarkUpTo(ctx, p.NodeID)
		}
	case "toggleSection", "selectSection":
		var p sectionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return reject("invalid " + inbound.Type + " payload")
		}
		if _, ok := session.Outline().Section(p.SectionID); !ok {
			return reject(domain.ErrSectionNotFound.Error())
		}
		if inbound.Type == "toggleSection" {
			session.ToggleSection(ctx, p.SectionID, p.Completed)
		} else {
			session.SelectSection(ctx, p.SectionID)
		}
	case "toggleSubsection", "selectSubsection":
		var p sectionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return reject("invalid " + inbound.Type + " payload")
		}
		if _, ok := session.Outline().Subsection(p.SubsectionID); !ok {
			return reject(domain.ErrSectionNotFound.Error())
		}
		if inbound.Type == "toggleSubsection" {
			session.ToggleSubsection(ctx, p.SubsectionID, p.Completed)
		} else {
			session.SelectSubsection(ctx, p.SubsectionID)
		}
	case "visibility":
		var p visibilityPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return reject("invalid visibility payload")
		}
		session.ReportVisibility(ctx, p.Samples)
	case "anchors":
		var p anchorsPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return reject("invalid anchors payload")
		}
		scroller.mount(p.Mounted, p.Unmounted)
	case "scrollRequest":
		var p scrollPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil || p.AnchorID == "" {
			return reject("invalid scrollRequest payload")
		}
		offset := -1
		if p.Offset != nil {
			offset = *p.Offset
		}
		if err := session.ScrollTo(ctx, p.AnchorID, offset); err != nil {
			return reject(err.Error())
		}
	case "scrollProgress":
		var p scrollProgressPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			return reject("invalid scrollProgress payload")
		}
		session.RecordScrollProgress(p.Percent)
	default:
		return reject("unsupported message type")
	}
	return outboundMessage[any]{}, true
}

func toOutbound(update app.Update) []outboundMessage[any] {
	switch update.Kind {
	case app.UpdateOutline:
		return []outboundMessage[any]{{Type: "outline", Payload: update.Outline}}
	case app.UpdatePosition:
		return []outboundMessage[any]{{Type: "position", Payload: update.Position}}
	case app.UpdateProgress:
		msgs := []outboundMessage[any]{{Type: "summary", Payload: update.Progress}}
		if update.Changed != nil {
			ev := *update.Changed
			ev.Progress = nil
			msgs = append(msgs, outboundMessage[any]{Type: "progressChanged", Payload: ev})
		}
		return msgs
	}
	return nil
}

// outbox guards the writer channel so late pushes after close are dropped.
type outbox struct {
	mu     sync.Mutex
	closed bool
	send   chan outboundMessage[any]
}

func (o *outbox) push(msg outboundMessage[any], done <-chan struct{}) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.send <- msg:
		return true
	case <-done:
		return false
	}
}

// offer never blocks; used from scroll retries.
func (o *outbox) offer(msg outboundMessage[any]) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.send <- msg:
		return true
	default:
		return false
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.send)
	}
}
