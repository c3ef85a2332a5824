package api

import (
	"context"

	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/payload"
)

// ArticleQuery filters the article list. Zero fields are omitted.
type ArticleQuery struct {
	Page    int    `json:"page,omitempty"`
	Size    int    `json:"size,omitempty"`
	Keyword string `json:"keyword,omitempty"`
}

// ListArticles returns one page of articles, newest first.
func (s *Service) ListArticles(ctx context.Context, q ArticleQuery) (*ArticlePage, error) {
	var out ArticlePage
	if _, err := s.call(ctx, "GET", "/apis/articles", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetArticle fetches one article.
func (s *Service) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var out Article
	if _, err := s.call(ctx, "GET", idPath("/apis/articles/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ArticleInput is the article form. Image is optional.
type ArticleInput struct {
	Title   string
	Content string
	Image   *client.File
}

func (in ArticleInput) form() client.Call {
	form := payload.NewObject().
		Set("title", in.Title).
		Set("content", in.Content)
	if in.Image != nil {
		form.Set("imagefile", in.Image)
	}
	return client.Call{Body: form, UseFormData: true}
}

// CreateArticle posts a new article as multipart.
func (s *Service) CreateArticle(ctx context.Context, in ArticleInput) (*Article, error) {
	var out Article
	if _, err := s.call(ctx, "POST", "/apis/articles/post", in.form(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateArticle replaces the title and content of id.
func (s *Service) UpdateArticle(ctx context.Context, id int64, in ArticleInput) (*Article, error) {
	var out Article
	if _, err := s.call(ctx, "PATCH", idPath("/apis/articles/update/%d", id), in.form(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteArticle removes id and its comments.
func (s *Service) DeleteArticle(ctx context.Context, id int64) error {
	_, err := s.call(ctx, "DELETE", idPath("/apis/articles/%d", id), nil, nil)
	return err
}

// VoteArticle toggles the caller's vote on id.
func (s *Service) VoteArticle(ctx context.Context, id int64) (*VoteResult, error) {
	var out VoteResult
	if _, err := s.call(ctx, "POST", idPath("/apis/articles/vote/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
