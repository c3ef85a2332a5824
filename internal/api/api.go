// Package api wraps the board backend's routes in typed calls. Every call
// goes through client.Send, so encoding, CSRF and error normalization are
// the dispatcher's.
package api

import (
	"context"
	"fmt"

	"github.com/nghyane/board-client/internal/client"
)

// Service issues typed backend calls over one client.
type Service struct {
	client *client.Client
}

// New returns a Service over c.
func New(c *client.Client) *Service {
	return &Service{client: c}
}

// Client returns the underlying dispatcher.
func (s *Service) Client() *client.Client { return s.client }

// call sends one request and decodes a successful body into out when out
// is non-nil.
func (s *Service) call(ctx context.Context, method, path string, params, out any) (*client.Response, error) {
	resp, err := s.client.Send(ctx, method, path, params)
	if err != nil {
		return nil, err
	}
	if out != nil && len(resp.Raw) > 0 {
		if err := resp.Decode(out); err != nil {
			return resp, fmt.Errorf("api: %s %s: %w", method, path, err)
		}
	}
	return resp, nil
}

func idPath(format string, id int64) string {
	return fmt.Sprintf(format, id)
}
