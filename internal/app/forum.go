package app

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chronotech-quiz-service/internal/docstore"
	"chronotech-quiz-service/internal/domain"
	"chronotech-quiz-service/internal/metrics"
	"go.uber.org/zap"
)

// Forum owns comments, replies, likes and cascading deletes.
type Forum struct {
	store        docstore.Store
	achievements *AchievementEvaluator
	now          func() time.Time
	newID        func() string
	log          *zap.Logger
	metrics      *metrics.Recorder
}

func NewForum(store docstore.Store, achievements *AchievementEvaluator, opts ...Option) *Forum {
	o := buildOptions(opts)
	return &Forum{
		store:        store,
		achievements: achievements,
		now:          o.now,
		newID:        o.newID,
		log:          o.log,
		metrics:      o.metrics,
	}
}

func validateText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", domain.ErrEmptyText
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxCommentLength {
		return "", domain.ErrTextTooLong
	}
	return trimmed, nil
}

// PostComment creates a comment and bumps the author's comment count in one
// transaction, then evaluates achievements. Evaluation failures are logged;
// the comment stands.
func (f *Forum) PostComment(ctx context.Context, p *domain.Principal, text string) (domain.Comment, []domain.Achievement, error) {
	if p == nil || p.UID == "" {
		return domain.Comment{}, nil, domain.ErrNoPrincipal
	}
	text, err := validateText(text)
	if err != nil {
		return domain.Comment{}, nil, err
	}

	var comment domain.Comment
	err = f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		user, err := readUser(ctx, tx, p.UID)
		if err != nil {
			return err
		}
		comment = f.newComment(p, user, text)
		if err := tx.Set(commentPath(comment.ID), comment); err != nil {
			return err
		}
		return tx.Set(userPath(p.UID), map[string]any{"commentCount": user.CommentCount + 1}, docstore.Merge())
	})
	if err != nil {
		return domain.Comment{}, nil, classify("post comment", err)
	}
	f.metrics.ForumAction("comment")

	unlocked, err := f.achievements.Evaluate(ctx, p.UID)
	if err != nil {
		f.log.Warn("achievement evaluation after comment failed",
			zap.String("user_id", p.UID), zap.String("comment_id", comment.ID), zap.Error(err))
	}
	return comment, unlocked, nil
}

// PostReply adds a reply under commentID. The parent is checked in the same
// transaction as the reply write.
func (f *Forum) PostReply(ctx context.Context, p *domain.Principal, commentID, text string) (domain.Reply, error) {
	if p == nil || p.UID == "" {
		return domain.Reply{}, domain.ErrNoPrincipal
	}
	text, err := validateText(text)
	if err != nil {
		return domain.Reply{}, err
	}
	if commentID == "" {
		return domain.Reply{}, domain.Errorf(domain.ErrInvalidArgument, "commentId is required")
	}

	var reply domain.Reply
	err = f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, commentPath(commentID)); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				return domain.ErrCommentNotFound
			}
			return err
		}
		user, _, err := docstore.Get[domain.User](ctx, tx, userPath(p.UID))
		if err != nil {
			return err
		}
		reply = domain.Reply{Comment: f.newComment(p, user, text), CommentID: commentID}
		return tx.Set(replyPath(commentID, reply.ID), reply)
	})
	if err != nil {
		return domain.Reply{}, classify("post reply", err)
	}
	f.metrics.ForumAction("reply")
	return reply, nil
}

// newComment prefers the live identity for author details and falls back to
// the user document.
func (f *Forum) newComment(p *domain.Principal, user domain.User, text string) domain.Comment {
	name, photo := p.DisplayName, p.PhotoURL
	if name == "" {
		name = user.DisplayName
	}
	if photo == "" {
		photo = user.PhotoURL
	}
	return domain.Comment{
		ID:          f.newID(),
		AuthorID:    p.UID,
		AuthorName:  name,
		AuthorPhoto: photo,
		Text:        text,
		CreatedAt:   f.now(),
		Likes:       map[string]bool{},
		LikeCount:   0,
	}
}

func targetPath(commentID, replyID string) (string, error) {
	if commentID == "" {
		return "", domain.Errorf(domain.ErrInvalidArgument, "commentId is required")
	}
	if replyID != "" {
		return replyPath(commentID, replyID), nil
	}
	return commentPath(commentID), nil
}

// ToggleLike flips the principal's like on a comment, or on a reply when
// replyID is set. It reports the resulting membership and count.
func (f *Forum) ToggleLike(ctx context.Context, principalID, commentID, replyID string) (liked bool, likeCount int, err error) {
	if principalID == "" {
		return false, 0, domain.ErrNoPrincipal
	}
	path, err := targetPath(commentID, replyID)
	if err != nil {
		return false, 0, err
	}

	err = f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		target, found, err := docstore.Get[domain.Comment](ctx, tx, path)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrCommentNotFound
		}
		liked = target.ToggleLike(principalID)
		likeCount = target.LikeCount
		return tx.Set(path, map[string]any{
			"likes":     target.Likes,
			"likeCount": target.LikeCount,
		}, docstore.Merge())
	})
	if err != nil {
		return false, 0, classify("toggle like", err)
	}
	if liked {
		f.metrics.ForumAction("like")
	} else {
		f.metrics.ForumAction("unlike")
	}
	return liked, likeCount, nil
}

// DeleteComment removes a reply, or a comment together with all of its
// replies in one atomic batch. Only the author or an admin may delete; the
// admin flag is read from the principal's document.
func (f *Forum) DeleteComment(ctx context.Context, principalID, commentID, replyID string) error {
	if principalID == "" {
		return domain.ErrNoPrincipal
	}
	path, err := targetPath(commentID, replyID)
	if err != nil {
		return err
	}

	target, found, err := docstore.Get[domain.Comment](ctx, f.store, path)
	if err != nil {
		return classify("read comment", err)
	}
	if !found {
		return domain.ErrCommentNotFound
	}
	if target.AuthorID != principalID {
		user, _, err := docstore.Get[domain.User](ctx, f.store, userPath(principalID))
		if err != nil {
			return classify("read user", err)
		}
		if !user.IsAdmin {
			return domain.ErrNotAuthor
		}
	}

	writes := []docstore.Write{{Path: path, Delete: true}}
	if replyID == "" {
		replies, err := f.store.Query(ctx, docstore.Query{Collection: repliesCollection(commentID)})
		if err != nil {
			return classify("list replies", err)
		}
		for _, r := range replies {
			writes = append(writes, docstore.Write{Path: r.Path, Delete: true})
		}
	}
	if err := f.store.Batch(ctx, writes); err != nil {
		return classify("delete comment", err)
	}

	f.metrics.ForumAction("delete")
	f.log.Info("comment deleted",
		zap.String("user_id", principalID),
		zap.String("comment_id", commentID),
		zap.String("reply_id", replyID),
		zap.Int("documents", len(writes)))
	return nil
}

// Comments returns top-level comments, newest first. limit <= 0 returns all.
func (f *Forum) Comments(ctx context.Context, limit int) ([]domain.Comment, error) {
	docs, err := f.store.Query(ctx, commentsQuery(limit))
	if err != nil {
		return nil, classify("query comments", err)
	}
	return decodeComments(docs)
}

// Replies returns a thread's replies, oldest first.
func (f *Forum) Replies(ctx context.Context, commentID string) ([]domain.Reply, error) {
	if commentID == "" {
		return nil, domain.Errorf(domain.ErrInvalidArgument, "commentId is required")
	}
	docs, err := f.store.Query(ctx, repliesQuery(commentID))
	if err != nil {
		return nil, classify("query replies", err)
	}
	return decodeReplies(docs)
}

// SubscribeComments pushes the full ordered comment list on every change.
func (f *Forum) SubscribeComments(ctx context.Context, limit int) (<-chan []domain.Comment, func(), error) {
	docs, cancel, err := f.store.Subscribe(ctx, commentsQuery(limit))
	if err != nil {
		return nil, nil, classify("subscribe comments", err)
	}
	return mapFeed(docs, f.log, decodeComments), cancel, nil
}

// SubscribeReplies pushes a thread's full reply list on every change.
func (f *Forum) SubscribeReplies(ctx context.Context, commentID string) (<-chan []domain.Reply, func(), error) {
	if commentID == "" {
		return nil, nil, domain.Errorf(domain.ErrInvalidArgument, "commentId is required")
	}
	docs, cancel, err := f.store.Subscribe(ctx, repliesQuery(commentID))
	if err != nil {
		return nil, nil, classify("subscribe replies", err)
	}
	return mapFeed(docs, f.log, decodeReplies), cancel, nil
}

func commentsQuery(limit int) docstore.Query {
	if limit < 0 {
		limit = 0
	}
	return docstore.Query{Collection: commentsCollection, OrderBy: "createdAt", Direction: docstore.Desc, Limit: limit}
}

func repliesQuery(commentID string) docstore.Query {
	return docstore.Query{Collection: repliesCollection(commentID), OrderBy: "createdAt", Direction: docstore.Asc}
}

func decodeComments(docs []docstore.Document) ([]domain.Comment, error) {
	return docstore.DecodeAll[domain.Comment](docs)
}

func decodeReplies(docs []docstore.Document) ([]domain.Reply, error) {
	return docstore.DecodeAll[domain.Reply](docs)
}
