package api

import (
	"context"
	"fmt"

	"github.com/nghyane/board-client/internal/client"
)

// MediaKind is the kind of an editor upload.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaOwner says whether an upload belongs to an article or a comment.
type MediaOwner string

const (
	OwnerArticle MediaOwner = "article"
	OwnerComment MediaOwner = "comment"
)

// field is the multipart name the upload route reads.
func (k MediaKind) field() string {
	return string(k) + "file"
}

func (k MediaKind) valid() bool {
	return k == MediaImage || k == MediaVideo
}

func uploadPath(owner MediaOwner, kind MediaKind) (string, error) {
	if !kind.valid() {
		return "", fmt.Errorf("api: unknown media kind %q", kind)
	}
	switch owner {
	case OwnerArticle:
		return "/apis/wysiwyg/article/" + string(kind) + "/upload", nil
	case OwnerComment:
		return "/apis/wysiwyg/article/comment/" + string(kind) + "/upload", nil
	}
	return "", fmt.Errorf("api: unknown media owner %q", owner)
}

// Upload sends one editor file and returns its public URL.
func (s *Service) Upload(ctx context.Context, owner MediaOwner, kind MediaKind, file *client.File) (*UploadResult, error) {
	path, err := uploadPath(owner, kind)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("api: upload needs a file")
	}
	form := client.NewFormData()
	form.AppendFile(kind.field(), file)

	var out UploadResult
	if _, err := s.call(ctx, "POST", path, form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkDelete records srcs as delete candidates of markID.
func (s *Service) MarkDelete(ctx context.Context, kind MediaKind, markID int64, srcs []string) (*MarkResult, error) {
	return s.mark(ctx, "mark", kind, markID, srcs)
}

// UnmarkDelete withdraws srcs from the delete candidates of markID.
func (s *Service) UnmarkDelete(ctx context.Context, kind MediaKind, markID int64, srcs []string) (*MarkResult, error) {
	return s.mark(ctx, "unmark", kind, markID, srcs)
}

func (s *Service) mark(ctx context.Context, verb string, kind MediaKind, markID int64, srcs []string) (*MarkResult, error) {
	if !kind.valid() {
		return nil, fmt.Errorf("api: unknown media kind %q", kind)
	}
	if srcs == nil {
		srcs = []string{}
	}
	var out struct {
		Marked   []string `json:"marked"`
		Unmarked []string `json:"unmarked"`
		Added    int      `json:"added"`
		Removed  int      `json:"removed"`
	}
	path := fmt.Sprintf("/apis/wysiwyg/%s_delete_%ss/%d", verb, kind, markID)
	if _, err := s.call(ctx, "POST", path, srcs, &out); err != nil {
		return nil, err
	}
	if verb == "mark" {
		return &MarkResult{Sources: out.Marked, Count: out.Added}, nil
	}
	return &MarkResult{Sources: out.Unmarked, Count: out.Removed}, nil
}
