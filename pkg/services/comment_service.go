package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yourmoment/yourmoment/pkg/models"
)

const (
	defaultCommentPageSize = 50
	maxCommentPageSize     = 200
)

// CommentStore is the comment persistence surface the service needs.
type CommentStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AIComment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AIComment, error)
	ListByProcessAndStatus(ctx context.Context, processID uuid.UUID, status models.CommentStatus) ([]models.AIComment, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

// CommentService exposes read and soft-delete access to pipeline comments.
// Comments are only ever written by the pipeline itself.
type CommentService struct {
	comments CommentStore
}

// NewCommentService creates the comment service.
func NewCommentService(comments CommentStore) *CommentService {
	return &CommentService{comments: comments}
}

// ListComments returns a page of the user's comments, newest first.
func (s *CommentService) ListComments(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AIComment, error) {
	if limit <= 0 {
		limit = defaultCommentPageSize
	}
	if limit > maxCommentPageSize {
		limit = maxCommentPageSize
	}
	if offset < 0 {
		offset = 0
	}
	comments, err := s.comments.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return comments, nil
}

// GetComment returns one comment, enforcing ownership.
func (s *CommentService) GetComment(ctx context.Context, userID, id uuid.UUID) (*models.AIComment, error) {
	c, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if c.UserID != userID {
		return nil, ErrForbidden
	}
	return c, nil
}

// DeleteComment soft-deletes a comment. The row is kept so the pipeline's
// duplicate tracking still sees the article/login/prompt combination.
func (s *CommentService) DeleteComment(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetComment(ctx, userID, id); err != nil {
		return err
	}
	return mapStoreErr(s.comments.SoftDelete(ctx, id))
}
