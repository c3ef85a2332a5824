package stubserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// User is a stub account. Password is stored in the clear.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	ImgPath   string    `json:"img_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Article is a stub post.
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

// Comment is a stub comment on an article.
type Comment struct {
	ID         int64     `json:"id"`
	ArticleID  int64     `json:"article_id"`
	AuthorID   int64     `json:"author_id"`
	Content    string    `json:"content"`
	VoterCount int       `json:"voter_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type voteKey struct {
	kind string
	id   int64
}

type store struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]*User
	sessions map[string]int64
	codes    map[string]string
	verified map[string]string
	articles map[int64]*Article
	comments map[int64]*Comment
	votes    map[voteKey]map[int64]bool
	marks    map[string]map[string]bool
	uploads  []string
}

func newStore() *store {
	return &store{
		users:    make(map[int64]*User),
		sessions: make(map[string]int64),
		codes:    make(map[string]string),
		verified: make(map[string]string),
		articles: make(map[int64]*Article),
		comments: make(map[int64]*Comment),
		votes:    make(map[voteKey]map[int64]bool),
		marks:    make(map[string]map[string]bool),
	}
}

func (s *store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *store) addUser(u User) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	} else if u.ID > s.nextID {
		s.nextID = u.ID
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := u
	s.users[u.ID] = &stored
	return &stored
}

func (s *store) userByEmail(email string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u
		}
	}
	return nil
}

func (s *store) userByName(name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func (s *store) deleteUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for tok, uid := range s.sessions {
		if uid == id {
			delete(s.sessions, tok)
		}
	}
}

func (s *store) login(userID int64) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	access = uuid.NewString()
	refresh = uuid.NewString()
	s.sessions[access] = userID
	return access, refresh
}

func (s *store) logout(access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, access)
}

func (s *store) sessionUser(access string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[access]
	if !ok {
		return nil
	}
	return s.users[id]
}

func (s *store) issueCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := fmt.Sprintf("%06d", uuid.New().ID()%1_000_000)
	s.codes[strings.ToLower(email)] = code
	return code
}

func (s *store) verifyCode(email, code string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	want, ok := s.codes[key]
	if !ok || want != code {
		return "", false
	}
	delete(s.codes, key)
	tok := uuid.NewString()
	s.verified[key] = tok
	return tok, true
}

func (s *store) checkVerified(email, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.verified[strings.ToLower(email)]
	return ok && token != "" && want == token
}

// dropVerified spends a verified token once the action it guards succeeded.
func (s *store) dropVerified(email, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if s.verified[key] == token {
		delete(s.verified, key)
	}
}

func (s *store) code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[strings.ToLower(email)]
}

func (s *store) addArticle(a *Article) *Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.articles[a.ID] = a
	return a
}

func (s *store) article(id int64) *Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.articles[id]
}

func (s *store) updateArticle(id int64, fn func(*Article)) *Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return nil
	}
	fn(a)
	a.UpdatedAt = time.Now().UTC()
	return a
}

func (s *store) deleteArticle(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.articles, id)
	delete(s.votes, voteKey{"article", id})
	for cid, c := range s.comments {
		if c.ArticleID == id {
			delete(s.comments, cid)
			delete(s.votes, voteKey{"comment", cid})
		}
	}
}

func (s *store) addComment(c *Comment) *Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	s.comments[c.ID] = c
	return c
}

func (s *store) comment(id int64) *Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments[id]
}

func (s *store) updateComment(id int64, content string) *Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[id]
	if !ok {
		return nil
	}
	c.Content = content
	c.UpdatedAt = time.Now().UTC()
	return c
}

func (s *store) deleteComment(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.comments, id)
	delete(s.votes, voteKey{"comment", id})
}

// toggleVote flips userID's vote and returns "insert" or "delete" with the
// new count.
func (s *store) toggleVote(kind string, id, userID int64) (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{kind, id}
	voters := s.votes[key]
	if voters == nil {
		voters = make(map[int64]bool)
		s.votes[key] = voters
	}
	result := "insert"
	if voters[userID] {
		delete(voters, userID)
		result = "delete"
	} else {
		voters[userID] = true
	}
	count := len(voters)
	switch kind {
	case "article":
		if a := s.articles[id]; a != nil {
			a.VoterCount = count
		}
	case "comment":
		if c := s.comments[id]; c != nil {
			c.VoterCount = count
		}
	}
	return result, count
}

func (s *store) nextUploadID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads) + 1
}

func (s *store) addUpload(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, url)
}

// mark adds srcs to the delete candidates under key and returns how many
// were new.
func (s *store) mark(key string, srcs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.marks[key]
	if set == nil {
		set = make(map[string]bool)
		s.marks[key] = set
	}
	added := 0
	for _, src := range srcs {
		if !set[src] {
			set[src] = true
			added++
		}
	}
	return added
}

// unmark removes srcs from the candidates under key and returns how many
// were present.
func (s *store) unmark(key string, srcs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.marks[key]
	removed := 0
	for _, src := range srcs {
		if set[src] {
			delete(set, src)
			removed++
		}
	}
	return removed
}

func (s *store) marked(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.marks[key]))
	for src := range s.marks[key] {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}
