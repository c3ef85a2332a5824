package api

import "time"

// TokenResponse is the login answer. The same tokens are also set as
// cookies.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// User is an account as the backend returns it.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	ImgPath   string    `json:"img_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Article is a board post.
type Article struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	ImgPath    *string   `json:"img_path"`
	VoterCount int       `json:"voter_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ArticlePage is one page of the article list.
type ArticlePage struct {
	Total    int       `json:"total"`
	Articles []Article `json:"article_list"`
}

// Comment is a comment on an article.
type Comment struct {
	ID         int64     `json:"id"`
	ArticleID  int64     `json:"article_id"`
	AuthorID   int64     `json:"author_id"`
	Content    string    `json:"content"`
	VoterCount int       `json:"voter_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// VoteResult is the answer of a vote toggle.
type VoteResult struct {
	Result     string `json:"result"`
	VoterCount int    `json:"voter_count"`
}

// Voted reports whether the toggle added the caller's vote.
func (v VoteResult) Voted() bool { return v.Result == "insert" }

// UploadResult carries the public URL of an uploaded file.
type UploadResult struct {
	URL string `json:"url"`
}

// MarkResult is the answer of a mark or unmark call. Count is the number
// of sources whose state changed.
type MarkResult struct {
	Sources []string `json:"sources"`
	Count   int      `json:"count"`
}

// AuthCodeType says what a verification code is for.
type AuthCodeType string

const (
	AuthCodeRegister AuthCodeType = "register"
	AuthCodeLost     AuthCodeType = "lost"
	AuthCodeEmail    AuthCodeType = "email"
)

// IssuesToken reports whether verifying this type yields a verified token.
func (t AuthCodeType) IssuesToken() bool {
	return t == AuthCodeRegister || t == AuthCodeLost
}
