package http

import (
	"context"
	"net/http"

	"chronotech-quiz-service/internal/domain"
	"go.uber.org/zap"
)

const (
	topicLeaderboard = "leaderboard"
	topicComments    = "comments"
	topicReplies     = "replies"
	topicMission     = "mission"
)

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ServeWS upgrades the request and streams the full view of one topic on
// every change: /ws?topic=leaderboard|comments|replies|mission[&limit=n].
// The replies topic takes the thread as commentId.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	// subscribe before upgrading so failures are reported as plain HTTP errors
	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()
	updates, cancel, err := s.subscribe(ctx, topic, principalID(r), r.URL.Query().Get("commentId"), limit)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// the writer goroutine is the only one touching conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write failed", zap.String("topic", topic), zap.Error(err))
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
				select {
				case send <- outboundMessage{Type: topic, Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// reads only detect the client going away
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	cancelCtx()
	<-updatesDone
	close(send)
	<-writerDone
}

// subscribe opens the feed for topic and erases its element type so the
// writer loop can serve every topic.
func (s *Server) subscribe(ctx context.Context, topic, uid, commentID string, limit int) (<-chan any, func(), error) {
	switch topic {
	case topicLeaderboard:
		ch, cancel, err := s.svc.Leaderboard.Subscribe(ctx, limit)
		if err != nil {
			return nil, nil, err
		}
		return forward(ctx, ch), cancel, nil
	case topicComments:
		ch, cancel, err := s.svc.Forum.SubscribeComments(ctx, limit)
		if err != nil {
			return nil, nil, err
		}
		return forward(ctx, ch), cancel, nil
	case topicReplies:
		ch, cancel, err := s.svc.Forum.SubscribeReplies(ctx, commentID)
		if err != nil {
			return nil, nil, err
		}
		return forward(ctx, ch), cancel, nil
	case topicMission:
		if uid == "" {
			return nil, nil, domain.ErrNoPrincipal
		}
		ch, cancel, err := s.svc.Missions.Subscribe(ctx, uid)
		if err != nil {
			return nil, nil, err
		}
		return forward(ctx, ch), cancel, nil
	default:
		return nil, nil, domain.Errorf(domain.ErrInvalidArgument, "unknown topic %q", topic)
	}
}

func forward[T any](ctx context.Context, in <-chan T) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		for v := range in {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
