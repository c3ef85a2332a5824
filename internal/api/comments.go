package api

import "context"

type commentBody struct {
	Content string `json:"content"`
}

// CreateComment adds a comment to articleID.
func (s *Service) CreateComment(ctx context.Context, articleID int64, content string) (*Comment, error) {
	var out Comment
	path := idPath("/apis/articles/comments/post/%d", articleID)
	if _, err := s.call(ctx, "POST", path, commentBody{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateComment replaces the content of id.
func (s *Service) UpdateComment(ctx context.Context, id int64, content string) (*Comment, error) {
	var out Comment
	path := idPath("/apis/articles/comments/update/%d", id)
	if _, err := s.call(ctx, "PATCH", path, commentBody{Content: content}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComment removes id.
func (s *Service) DeleteComment(ctx context.Context, id int64) error {
	_, err := s.call(ctx, "DELETE", idPath("/apis/articles/comments/%d", id), nil, nil)
	return err
}

// VoteComment toggles the caller's vote on id.
func (s *Service) VoteComment(ctx context.Context, id int64) (*VoteResult, error) {
	var out VoteResult
	if _, err := s.call(ctx, "POST", idPath("/apis/articles/comments/vote/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
