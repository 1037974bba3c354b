package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/ai"
	"github.com/dmitrijs2005/audiodesc/internal/assistant"
	"github.com/dmitrijs2005/audiodesc/internal/logging"
	"github.com/dmitrijs2005/audiodesc/internal/queue"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 25 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// inbound message types: question, media, reset, cancel.
type wsInbound struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Mime     string `json:"mime,omitempty"`
	// Data is base64 in JSON.
	Data  []byte `json:"data,omitempty"`
	Fresh bool   `json:"fresh,omitempty"`
	JobID string `json:"job_id,omitempty"`
}

type wsOutbound struct {
	Type      string   `json:"type"`
	JobID     string   `json:"job_id,omitempty"`
	Chunks    []string `json:"chunks,omitempty"`
	Cancelled *bool    `json:"cancelled,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
	Message   string   `json:"message,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	log  logging.Logger
	mu   sync.Mutex
}

func (c *wsConn) send(msg wsOutbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(msg)
}

// deliver sends msg and logs a failed write; the read loop notices the
// broken connection on its own.
func (c *wsConn) deliver(ctx context.Context, msg wsOutbound) {
	if err := c.send(msg); err != nil {
		c.log.Debug(ctx, "websocket write failed", "type", msg.Type, "job_id", msg.JobID, "error", err.Error())
	}
}

func (c *wsConn) sendError(ctx context.Context, jobID, kind, message string) {
	c.deliver(ctx, wsOutbound{Type: "error", JobID: jobID, ErrorKind: kind, Message: message})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user := userIDFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn, log: s.log}

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	go s.pingLoop(ctx, c)

	var pending sync.WaitGroup
	defer pending.Wait()

	c.deliver(ctx, wsOutbound{Type: "connected"})

	for {
		var msg wsInbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn(ctx, "websocket read error", "error", err.Error())
			}
			cancel()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		s.handleWSMessage(ctx, c, user, msg, &pending)
	}
}

func (s *Server) handleWSMessage(ctx context.Context, c *wsConn, user string, msg wsInbound, pending *sync.WaitGroup) {
	var job queue.Job

	switch msg.Type {
	case "cancel":
		if _, ok := s.jobs.get(msg.JobID, user); !ok {
			c.sendError(ctx, msg.JobID, "not_found", "job not found")
			return
		}
		cancelled := s.queue.Cancel(msg.JobID)
		c.deliver(ctx, wsOutbound{Type: "cancel", JobID: msg.JobID, Cancelled: &cancelled})
		return
	case "reset":
		job = queue.Job{Reset: true}
	case "question":
		job = queue.Job{Kind: ai.KindText, Question: msg.Question}
	case "media":
		job = queue.Job{Data: msg.Data, Mime: msg.Mime, Question: msg.Question, Fresh: msg.Fresh}
		if msg.Kind != "" {
			kind, err := ai.ParseKind(msg.Kind)
			if err != nil {
				c.sendError(ctx, "", assistant.KindInvalid, err.Error())
				return
			}
			job.Kind = kind
		} else {
			job.Kind = ai.KindFromMime(msg.Mime)
		}
	default:
		c.sendError(ctx, "", assistant.KindInvalid, "unsupported message type: "+msg.Type)
		return
	}
	job.UserID = user

	if !job.Reset {
		ok, err := s.sessions.HasAcceptedTerms(ctx, user)
		if err != nil {
			kind := assistant.ErrorKind(err)
			c.sendError(ctx, "", kind, assistant.FriendlyMessage(kind))
			return
		}
		if !ok {
			c.sendError(ctx, "", consentRequired, "terms of use must be accepted first")
			return
		}
	}

	h, err := s.queue.Submit(job)
	if err != nil {
		kind := assistant.ErrorKind(err)
		c.sendError(ctx, "", kind, assistant.FriendlyMessage(kind))
		return
	}
	s.jobs.add(h, user)
	c.deliver(ctx, wsOutbound{Type: "accepted", JobID: h.ID()})

	pending.Add(1)
	go func() {
		defer pending.Done()
		select {
		case <-h.Done():
		case <-ctx.Done():
			return
		}
		st := statusOf(h)
		out := wsOutbound{Type: "result", JobID: h.ID(), Chunks: st.Chunks}
		if st.Status == "failed" {
			out = wsOutbound{Type: "error", JobID: h.ID(), ErrorKind: st.ErrorKind, Message: st.Message}
		}
		c.deliver(ctx, out)
	}()
}

func (s *Server) pingLoop(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
