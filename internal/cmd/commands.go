package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nghyane/board-client/internal/api"
	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/config"
	log "github.com/nghyane/board-client/internal/logging"
	flag "github.com/spf13/pflag"
)

const usage = `commands:
  csrf                                   fetch and print a CSRF token
  login EMAIL PASSWORD [--user-id ID]    log in and save the session
  logout                                 log out and forget the session
  get|post|patch|delete PATH [ITEM...]   raw call; ITEM is k=v, k:=json or k@file
  article list [--page N] [--size N] [--keyword K]
  article get|delete|vote ID
  article create|update [ID] --title T --content C [--image FILE]
  comment create ARTICLE_ID CONTENT
  comment update ID CONTENT
  comment delete|vote ID
  upload article|comment image|video FILE
  mark|unmark image|video MARK_ID SRC...`

var errUsage = errors.New(usage)

type command func(ctx context.Context, r *Runner, args []string) error

var commands map[string]command

func init() {
	commands = map[string]command{
		"csrf":    runCSRF,
		"login":   runLogin,
		"logout":  runLogout,
		"article": runArticle,
		"comment": runComment,
		"upload":  runUpload,
		"mark":    runMark(true),
		"unmark":  runMark(false),
		"help": func(_ context.Context, r *Runner, _ []string) error {
			r.printf("%s\n", usage)
			return nil
		},
	}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetInterspersed(true)
	return fs
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func runCSRF(ctx context.Context, r *Runner, _ []string) error {
	tok, err := r.svc.CSRFToken(ctx)
	if err != nil {
		return err
	}
	r.printf("%s\n", tok)
	return nil
}

func runLogin(ctx context.Context, r *Runner, args []string) error {
	fs := newFlags("login")
	userID := fs.Int64("user-id", 0, "account id used for the redirect target")
	redirect := fs.String("redirect", "", "explicit redirect target")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: login EMAIL PASSWORD [--user-id ID]")
	}

	opts := api.LoginOptions{RedirectTo: *redirect}
	if *userID > 0 {
		opts.UserID = strconv.FormatInt(*userID, 10)
	}
	res := r.svc.LoginAndRedirect(ctx, fs.Arg(0), fs.Arg(1), opts)
	if !res.OK {
		if res.Err != nil {
			return res.Err
		}
		return errors.New(res.Message)
	}
	if err := r.saveSession(*userID); err != nil {
		log.WithError(err).Warn("session not saved")
	}
	r.printf("logged in, redirect to %s\n", res.Redirect)
	r.openPage(res.Redirect)
	return nil
}

func runLogout(ctx context.Context, r *Runner, _ []string) error {
	msg, err := r.svc.Logout(ctx)
	if !r.opts.NoSession {
		if errClear := config.ClearSession(); errClear != nil {
			log.WithError(errClear).Warn("failed to remove session file")
		}
	}
	if err != nil {
		return err
	}
	r.printf("%s\n", msg)
	return nil
}

// raw sends an arbitrary call and prints the decoded body.
func (r *Runner) raw(ctx context.Context, method string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s PATH [ITEM...]", strings.ToLower(method))
	}
	params, err := ParseParams(args[1:])
	if err != nil {
		return err
	}
	var p any
	if params != nil {
		p = params
	}
	resp, err := r.svc.Client().Send(ctx, method, args[0], p)
	if err != nil {
		return err
	}
	if len(resp.Raw) == 0 {
		r.printf("%d\n", resp.StatusCode)
		return nil
	}
	return r.print(resp.Payload)
}

func runArticle(ctx context.Context, r *Runner, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	sub, args := args[0], args[1:]

	fs := newFlags("article " + sub)
	title := fs.String("title", "", "article title")
	content := fs.String("content", "", "article body")
	image := fs.String("image", "", "image file to attach")
	page := fs.Int("page", 0, "page number, from 0")
	size := fs.Int("size", 0, "page size")
	keyword := fs.String("keyword", "", "search keyword")
	if err := fs.Parse(args); err != nil {
		return err
	}

	input := func() (api.ArticleInput, error) {
		in := api.ArticleInput{Title: *title, Content: *content}
		if *image != "" {
			f, err := client.OpenFile(*image)
			if err != nil {
				return in, err
			}
			in.Image = f
		}
		return in, nil
	}

	switch sub {
	case "list":
		list, err := r.svc.ListArticles(ctx, api.ArticleQuery{Page: *page, Size: *size, Keyword: *keyword})
		if err != nil {
			return err
		}
		return r.print(list)
	case "create":
		in, err := input()
		if err != nil {
			return err
		}
		a, err := r.svc.CreateArticle(ctx, in)
		if err != nil {
			return err
		}
		r.openPage(fmt.Sprintf("/views/articles/article/%d", a.ID))
		return r.print(a)
	}

	if fs.NArg() != 1 {
		return fmt.Errorf("usage: article %s ID", sub)
	}
	id, err := parseID(fs.Arg(0))
	if err != nil {
		return err
	}
	switch sub {
	case "get":
		a, err := r.svc.GetArticle(ctx, id)
		if err != nil {
			return err
		}
		return r.print(a)
	case "update":
		in, err := input()
		if err != nil {
			return err
		}
		a, err := r.svc.UpdateArticle(ctx, id, in)
		if err != nil {
			return err
		}
		return r.print(a)
	case "delete":
		if err := r.svc.DeleteArticle(ctx, id); err != nil {
			return err
		}
		r.printf("article %d deleted\n", id)
		return nil
	case "vote":
		v, err := r.svc.VoteArticle(ctx, id)
		if err != nil {
			return err
		}
		return r.print(v)
	}
	return fmt.Errorf("unknown article command %q", sub)
}

func runComment(ctx context.Context, r *Runner, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	sub := args[0]
	id, err := parseID(args[1])
	if err != nil {
		return err
	}
	content := strings.Join(args[2:], " ")

	switch sub {
	case "create":
		c, err := r.svc.CreateComment(ctx, id, content)
		if err != nil {
			return err
		}
		return r.print(c)
	case "update":
		c, err := r.svc.UpdateComment(ctx, id, content)
		if err != nil {
			return err
		}
		return r.print(c)
	case "delete":
		if err := r.svc.DeleteComment(ctx, id); err != nil {
			return err
		}
		r.printf("comment %d deleted\n", id)
		return nil
	case "vote":
		v, err := r.svc.VoteComment(ctx, id)
		if err != nil {
			return err
		}
		return r.print(v)
	}
	return fmt.Errorf("unknown comment command %q", sub)
}

func runUpload(ctx context.Context, r *Runner, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: upload article|comment image|video FILE")
	}
	f, err := client.OpenFile(args[2])
	if err != nil {
		return err
	}
	res, err := r.svc.Upload(ctx, api.MediaOwner(args[0]), api.MediaKind(args[1]), f)
	if err != nil {
		return err
	}
	r.printf("%s\n", res.URL)
	return nil
}

func runMark(mark bool) command {
	return func(ctx context.Context, r *Runner, args []string) error {
		if len(args) < 2 {
			return errors.New("usage: mark|unmark image|video MARK_ID SRC...")
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		kind := api.MediaKind(args[0])
		var res *api.MarkResult
		if mark {
			res, err = r.svc.MarkDelete(ctx, kind, id, args[2:])
		} else {
			res, err = r.svc.UnmarkDelete(ctx, kind, id, args[2:])
		}
		if err != nil {
			return err
		}
		return r.print(res)
	}
}
