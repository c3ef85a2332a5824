package stubserver

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/board-client/internal/json"
	"github.com/nghyane/board-client/internal/logging"
	"github.com/tidwall/sjson"
)

const (
	mediaRoot      = "/static/media"
	maxUploadBytes = 32 << 20
	ctxUserKey     = "stub.user"
)

func (s *Server) setupRoutes() {
	apis := s.engine.Group("/apis", s.csrfGuard())

	apis.GET("/auth/csrf_token", s.handleCSRFToken)

	accounts := apis.Group("/accounts")
	accounts.POST("/login", s.handleLogin)
	accounts.POST("/logout", s.handleLogout)
	accounts.POST("/authcode/request", s.handleAuthCodeRequest)
	accounts.POST("/authcode/verify", s.handleAuthCodeVerify)
	accounts.POST("/register", s.handleRegister)
	accounts.PATCH("/lost/password/resetting", s.handleLostPassword)
	accounts.PATCH("/account/update/:id", s.requireUser(), s.handleAccountUpdate)
	accounts.PATCH("/account/password/update/:id", s.requireUser(), s.handlePasswordUpdate)
	accounts.DELETE("/account/delete/:id", s.requireUser(), s.handleAccountDelete)

	articles := apis.Group("/articles")
	articles.GET("", s.handleArticleList)
	articles.GET("/:id", s.handleArticleGet)
	articles.POST("/post", s.requireUser(), s.handleArticleCreate)
	articles.PATCH("/update/:id", s.requireUser(), s.handleArticleUpdate)
	articles.DELETE("/:id", s.requireUser(), s.handleArticleDelete)
	articles.POST("/vote/:id", s.requireUser(), s.handleVote("article"))

	comments := articles.Group("/comments")
	comments.POST("/post/:id", s.requireUser(), s.handleCommentCreate)
	comments.PATCH("/update/:id", s.requireUser(), s.handleCommentUpdate)
	comments.DELETE("/:id", s.requireUser(), s.handleCommentDelete)
	comments.POST("/vote/:id", s.requireUser(), s.handleVote("comment"))

	wysiwyg := apis.Group("/wysiwyg")
	wysiwyg.POST("/article/image/upload", s.requireUser(), s.handleUpload("imagefile", "article/images"))
	wysiwyg.POST("/article/video/upload", s.requireUser(), s.handleUpload("videofile", "article/videos"))
	wysiwyg.POST("/article/comment/image/upload", s.requireUser(), s.handleUpload("imagefile", "comment/images"))
	wysiwyg.POST("/article/comment/video/upload", s.requireUser(), s.handleUpload("videofile", "comment/videos"))
	wysiwyg.POST("/mark_delete_images/:id", s.handleMark("delete_image_candidates", true))
	wysiwyg.POST("/unmark_delete_images/:id", s.handleMark("delete_image_candidates", false))
	wysiwyg.POST("/mark_delete_videos/:id", s.handleMark("delete_video_candidates", true))
	wysiwyg.POST("/unmark_delete_videos/:id", s.handleMark("delete_video_candidates", false))
}

// fieldError is one entry of a FastAPI validation error list.
type fieldError struct {
	loc  []string
	msg  string
	kind string
}

// validationBody renders errs the way FastAPI does for a 422:
// {"detail":[{"type":..,"loc":[..],"msg":..}]}.
func validationBody(errs ...fieldError) []byte {
	body := []byte(`{"detail":[]}`)
	for i, e := range errs {
		prefix := "detail." + strconv.Itoa(i)
		body, _ = sjson.SetBytes(body, prefix+".type", e.kind)
		body, _ = sjson.SetBytes(body, prefix+".loc", e.loc)
		body, _ = sjson.SetBytes(body, prefix+".msg", e.msg)
	}
	return body
}

func abortValidation(c *gin.Context, errs ...fieldError) {
	c.Data(http.StatusUnprocessableEntity, "application/json", validationBody(errs...))
	c.Abort()
}

func abortDetail(c *gin.Context, status int, detail any) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func missing(field string) fieldError {
	return fieldError{loc: []string{"body", field}, msg: "Field required", kind: "missing"}
}

func (s *Server) csrfGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		default:
			c.Next()
			return
		}
		if s.opts.requireCSRF && c.GetHeader(csrfHeaderName) != s.csrfToken {
			abortDetail(c, http.StatusForbidden, "CSRF token missing or invalid")
			return
		}
		c.Next()
	}
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := c.Cookie(accessCookieName)
		if err != nil || tok == "" {
			abortDetail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}
		u := s.store.sessionUser(tok)
		if u == nil {
			abortDetail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		c.Set(ctxUserKey, u)
		c.Next()
	}
}

func currentUser(c *gin.Context) *User {
	v, _ := c.Get(ctxUserKey)
	u, _ := v.(*User)
	return u
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortValidation(c, fieldError{
			loc:  []string{"path", "id"},
			msg:  "Input should be a valid integer, unable to parse string as an integer",
			kind: "int_parsing",
		})
		return 0, false
	}
	return id, true
}

// bindJSON decodes the body into out, answering 422 on malformed JSON.
func bindJSON(c *gin.Context, out any) bool {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err == nil && len(strings.TrimSpace(string(data))) == 0 {
		abortValidation(c, fieldError{loc: []string{"body"}, msg: "Field required", kind: "missing"})
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		abortValidation(c, fieldError{loc: []string{"body"}, msg: "JSON decode error", kind: "json_invalid"})
		return false
	}
	return true
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".") && !strings.ContainsAny(email, " \t")
}

func (s *Server) setAuthCookies(c *gin.Context, access, refresh string) {
	http.SetCookie(c.Writer, &http.Cookie{Name: accessCookieName, Value: access, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(c.Writer, &http.Cookie{Name: refreshCookieName, Value: refresh, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

func clearAuthCookies(c *gin.Context) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(c.Writer, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
}

func (s *Server) handleCSRFToken(c *gin.Context) {
	s.csrfFetches.Add(1)
	if s.opts.csrfCookie {
		http.SetCookie(c.Writer, &http.Cookie{Name: csrfCookieName, Value: s.csrfToken, Path: "/", SameSite: http.SameSiteLaxMode})
	}
	c.JSON(http.StatusOK, gin.H{"csrf_token": s.csrfToken})
}

func (s *Server) handleLogin(c *gin.Context) {
	var in struct {
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}
	if !bindJSON(c, &in) {
		return
	}
	var errs []fieldError
	switch {
	case in.Email == nil:
		errs = append(errs, missing("email"))
	case !validEmail(*in.Email):
		errs = append(errs, fieldError{loc: []string{"body", "email"}, msg: "value is not a valid email address", kind: "value_error"})
	}
	switch {
	case in.Password == nil:
		errs = append(errs, missing("password"))
	case strings.TrimSpace(*in.Password) == "":
		errs = append(errs, fieldError{loc: []string{"body", "password"}, msg: "empty values are not allowed", kind: "empty_value"})
	}
	if len(errs) > 0 {
		abortValidation(c, errs...)
		return
	}

	u := s.store.userByEmail(*in.Email)
	if u == nil || u.Password != *in.Password {
		c.Header("WWW-Authenticate", "Bearer")
		abortDetail(c, 411, "authentication failed")
		return
	}
	access, refresh := s.store.login(u.ID)
	s.setAuthCookies(c, access, refresh)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "bearer",
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	if tok, err := c.Cookie(accessCookieName); err == nil {
		s.store.logout(tok)
	}
	clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (s *Server) handleAuthCodeRequest(c *gin.Context) {
	var in struct {
		Email string `json:"email"`
		Type  string `json:"type"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if !validEmail(in.Email) {
		abortValidation(c, fieldError{loc: []string{"body", "email"}, msg: "value is not a valid email address", kind: "value_error"})
		return
	}
	exists := s.store.userByEmail(in.Email) != nil
	switch {
	case in.Type == "register" && exists:
		abortDetail(c, 499, "email is already registered")
		return
	case in.Type == "lost" && !exists:
		abortDetail(c, http.StatusNotFound, "user not found")
		return
	}
	code := s.store.issueCode(in.Email)
	logging.WithField("email", in.Email).WithField("type", in.Type).Infof("stub auth code %s", code)
	c.JSON(http.StatusOK, gin.H{"detail": "authentication code sent", "email": in.Email})
}

func (s *Server) handleAuthCodeVerify(c *gin.Context) {
	var in struct {
		Email    string `json:"email"`
		Authcode string `json:"authcode"`
		Type     string `json:"type"`
	}
	if !bindJSON(c, &in) {
		return
	}
	tok, ok := s.store.verifyCode(in.Email, in.Authcode)
	if !ok {
		abortDetail(c, http.StatusUnauthorized, "invalid authentication code")
		return
	}
	if in.Type == "register" || in.Type == "lost" {
		c.JSON(http.StatusOK, gin.H{"verified_token": tok})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "verified"})
}

// checkPasswords applies the account schema rules and answers 422 in the
// {field: [msg]} shape the account routes use.
func checkPasswords(c *gin.Context, password, confirm, confirmField string) bool {
	switch {
	case strings.TrimSpace(password) == "":
		abortDetail(c, http.StatusUnprocessableEntity, gin.H{"password": []string{"empty values are not allowed"}})
		return false
	case len(password) < 8:
		abortDetail(c, http.StatusUnprocessableEntity, gin.H{"password": []string{"password must be at least 8 characters"}})
		return false
	case password != confirm:
		abortDetail(c, http.StatusUnprocessableEntity, gin.H{confirmField: []string{"passwords do not match"}})
		return false
	}
	return true
}

func (s *Server) handleRegister(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		abortValidation(c, missing("username"), missing("email"), missing("token"), missing("password"), missing("password2"))
		return
	}
	var errs []fieldError
	for _, field := range []string{"username", "email", "token", "password", "password2"} {
		if _, ok := c.Request.MultipartForm.Value[field]; !ok {
			errs = append(errs, missing(field))
		}
	}
	if len(errs) > 0 {
		abortValidation(c, errs...)
		return
	}
	username := c.PostForm("username")
	email := c.PostForm("email")

	token := c.PostForm("token")
	if !s.store.checkVerified(email, token) {
		abortDetail(c, 410, "invalid verification token")
		return
	}
	if len(strings.TrimSpace(username)) < 3 {
		abortDetail(c, http.StatusUnprocessableEntity, gin.H{"username": []string{"username must be at least 3 characters"}})
		return
	}
	if !validEmail(email) {
		abortDetail(c, http.StatusUnprocessableEntity, gin.H{"email": []string{"value is not a valid email address"}})
		return
	}
	if !checkPasswords(c, c.PostForm("password"), c.PostForm("password2"), "confirmPassword") {
		return
	}
	if s.store.userByName(username) != nil {
		abortDetail(c, 499, "username is already taken")
		return
	}
	if s.store.userByEmail(email) != nil {
		abortDetail(c, 499, "email is already registered")
		return
	}

	u := s.store.addUser(User{Username: username, Email: email, Password: c.PostForm("password")})
	s.store.dropVerified(email, token)
	if url, ok := s.saveUpload(c, "imagefile", "profile/"+strconv.FormatInt(u.ID, 10)); ok {
		s.store.mu.Lock()
		u.ImgPath = url
		s.store.mu.Unlock()
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) handleLostPassword(c *gin.Context) {
	var in struct {
		Email           string `json:"email"`
		Token           string `json:"token"`
		NewPassword     string `json:"newpassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if !checkPasswords(c, in.NewPassword, in.ConfirmPassword, "confirmPassword") {
		return
	}
	u := s.store.userByEmail(in.Email)
	if u == nil {
		abortDetail(c, http.StatusNotFound, "user not found")
		return
	}
	if !s.store.checkVerified(in.Email, in.Token) {
		abortDetail(c, 410, "invalid verification token")
		return
	}
	s.store.mu.Lock()
	u.Password = in.NewPassword
	s.store.mu.Unlock()
	s.store.dropVerified(in.Email, in.Token)
	c.JSON(http.StatusOK, u)
}

func (s *Server) ownAccount(c *gin.Context) (*User, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	u := currentUser(c)
	if u == nil || u.ID != id {
		abortDetail(c, 411, "access denied")
		return nil, false
	}
	return u, true
}

func (s *Server) handleAccountUpdate(c *gin.Context) {
	u, ok := s.ownAccount(c)
	if !ok {
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil && err != http.ErrNotMultipart {
		abortDetail(c, http.StatusBadRequest, "malformed form data")
		return
	}
	if username := strings.TrimSpace(c.PostForm("username")); username != "" {
		switch {
		case username == u.Username:
			abortDetail(c, 499, "same as the current username")
			return
		case len(username) < 3:
			abortDetail(c, http.StatusUnprocessableEntity, gin.H{"username": []string{"username must be at least 3 characters"}})
			return
		case s.store.userByName(username) != nil:
			abortDetail(c, 499, "username is already taken")
			return
		}
		s.store.mu.Lock()
		u.Username = username
		s.store.mu.Unlock()
	}
	if url, ok := s.saveUpload(c, "imagefile", "profile/"+strconv.FormatInt(u.ID, 10)); ok {
		s.store.mu.Lock()
		u.ImgPath = url
		s.store.mu.Unlock()
	}
	c.JSON(http.StatusOK, u)
}

func (s *Server) handlePasswordUpdate(c *gin.Context) {
	u, ok := s.ownAccount(c)
	if !ok {
		return
	}
	var in struct {
		UserID          int64  `json:"user_id"`
		Password        string `json:"password"`
		NewPassword     string `json:"newpassword"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if !bindJSON(c, &in) {
		return
	}
	if in.UserID != u.ID {
		abortDetail(c, 411, "access denied")
		return
	}
	if !checkPasswords(c, in.NewPassword, in.ConfirmPassword, "confirmPassword") {
		return
	}
	if in.Password != u.Password {
		abortDetail(c, 411, "current password does not match")
		return
	}
	s.store.mu.Lock()
	u.Password = in.NewPassword
	s.store.mu.Unlock()
	c.JSON(http.StatusOK, u)
}

func (s *Server) handleAccountDelete(c *gin.Context) {
	u, ok := s.ownAccount(c)
	if !ok {
		return
	}
	s.store.deleteUser(u.ID)
	clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"detail": "account deleted"})
}

func (s *Server) handleArticleList(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	if size <= 0 {
		size = 10
	}
	keyword := strings.ToLower(c.Query("keyword"))

	s.store.mu.Lock()
	list := make([]*Article, 0, len(s.store.articles))
	for _, a := range s.store.articles {
		if keyword == "" || strings.Contains(strings.ToLower(a.Title+" "+a.Content), keyword) {
			list = append(list, a)
		}
	}
	s.store.mu.Unlock()

	sortArticles(list)
	total := len(list)
	start := min(page*size, total)
	end := min(start+size, total)
	c.JSON(http.StatusOK, gin.H{"total": total, "article_list": list[start:end]})
}

func sortArticles(list []*Article) {
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
}

func (s *Server) handleArticleGet(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	a := s.store.article(id)
	if a == nil {
		abortDetail(c, http.StatusNotFound, "article not found")
		return
	}
	c.JSON(http.StatusOK, a)
}

// articleForm reads title and content, answering 422 when either is absent.
func articleForm(c *gin.Context) (string, string, bool) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil && err != http.ErrNotMultipart {
		abortDetail(c, http.StatusBadRequest, "malformed form data")
		return "", "", false
	}
	title, hasTitle := c.GetPostForm("title")
	content, hasContent := c.GetPostForm("content")
	var errs []fieldError
	if !hasTitle {
		errs = append(errs, missing("title"))
	}
	if !hasContent {
		errs = append(errs, missing("content"))
	}
	if len(errs) > 0 {
		abortValidation(c, errs...)
		return "", "", false
	}
	if strings.TrimSpace(title) == "" {
		abortValidation(c, fieldError{loc: []string{"title"}, msg: "Value error, title must not be empty", kind: "value_error"})
		return "", "", false
	}
	return title, content, true
}

func (s *Server) handleArticleCreate(c *gin.Context) {
	title, content, ok := articleForm(c)
	if !ok {
		return
	}
	u := currentUser(c)
	a := &Article{AuthorID: u.ID, Title: title, Content: content}
	if url, ok := s.saveUpload(c, "imagefile", "articles/"+strconv.FormatInt(u.ID, 10)); ok {
		a.ImgPath = &url
	}
	c.JSON(http.StatusOK, s.store.addArticle(a))
}

// ownArticle loads the article at :id and checks the caller wrote it.
func (s *Server) ownArticle(c *gin.Context) (*Article, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	a := s.store.article(id)
	if a == nil {
		abortDetail(c, http.StatusNotFound, "article not found")
		return nil, false
	}
	if a.AuthorID != currentUser(c).ID {
		abortDetail(c, http.StatusForbidden, "Not authorized: access denied")
		return nil, false
	}
	return a, true
}

func (s *Server) handleArticleUpdate(c *gin.Context) {
	a, ok := s.ownArticle(c)
	if !ok {
		return
	}
	title, content, ok := articleForm(c)
	if !ok {
		return
	}
	url, hasImage := s.saveUpload(c, "imagefile", "articles/"+strconv.FormatInt(a.AuthorID, 10))
	updated := s.store.updateArticle(a.ID, func(a *Article) {
		a.Title, a.Content = title, content
		if hasImage {
			a.ImgPath = &url
		}
	})
	c.JSON(http.StatusOK, updated)
}

func (s *Server) handleArticleDelete(c *gin.Context) {
	a, ok := s.ownArticle(c)
	if !ok {
		return
	}
	s.store.deleteArticle(a.ID)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVote(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		exists := false
		switch kind {
		case "article":
			exists = s.store.article(id) != nil
		case "comment":
			exists = s.store.comment(id) != nil
		}
		if !exists {
			abortDetail(c, http.StatusBadRequest, "data not found")
			return
		}
		result, count := s.store.toggleVote(kind, id, currentUser(c).ID)
		c.JSON(http.StatusOK, gin.H{"result": result, "voter_count": count})
	}
}

type commentIn struct {
	Content *string `json:"content"`
}

func bindComment(c *gin.Context) (string, bool) {
	var in commentIn
	if !bindJSON(c, &in) {
		return "", false
	}
	if in.Content == nil {
		abortValidation(c, missing("content"))
		return "", false
	}
	if strings.TrimSpace(*in.Content) == "" {
		abortValidation(c, fieldError{loc: []string{"body", "content"}, msg: "Value error, content must not be empty", kind: "value_error"})
		return "", false
	}
	return *in.Content, true
}

func (s *Server) handleCommentCreate(c *gin.Context) {
	articleID, ok := pathID(c)
	if !ok {
		return
	}
	if s.store.article(articleID) == nil {
		abortDetail(c, http.StatusNotFound, "article not found")
		return
	}
	content, ok := bindComment(c)
	if !ok {
		return
	}
	cm := s.store.addComment(&Comment{ArticleID: articleID, AuthorID: currentUser(c).ID, Content: content})
	c.JSON(http.StatusOK, cm)
}

func (s *Server) ownComment(c *gin.Context) (*Comment, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	cm := s.store.comment(id)
	if cm == nil {
		abortDetail(c, http.StatusNotFound, "comment not found")
		return nil, false
	}
	if cm.AuthorID != currentUser(c).ID {
		abortDetail(c, http.StatusForbidden, "Not authorized: access denied")
		return nil, false
	}
	return cm, true
}

func (s *Server) handleCommentUpdate(c *gin.Context) {
	cm, ok := s.ownComment(c)
	if !ok {
		return
	}
	content, ok := bindComment(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.store.updateComment(cm.ID, content))
}

func (s *Server) handleCommentDelete(c *gin.Context) {
	cm, ok := s.ownComment(c)
	if !ok {
		return
	}
	s.store.deleteComment(cm.ID)
	c.Status(http.StatusNoContent)
}

// saveUpload records the file under field, if any, and returns its URL.
func (s *Server) saveUpload(c *gin.Context, field, dir string) (string, bool) {
	fh, err := c.FormFile(field)
	if err != nil || fh.Filename == "" {
		return "", false
	}
	url := path.Join(mediaRoot, dir, fmt.Sprintf("%d_%s", s.store.nextUploadID(), path.Base(fh.Filename)))
	s.store.addUpload(url)
	return url, true
}

func (s *Server) handleUpload(field, dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
			abortValidation(c, missing(field))
			return
		}
		url, ok := s.saveUpload(c, field, path.Join(dir, strconv.FormatInt(currentUser(c).ID, 10)))
		if !ok {
			abortValidation(c, missing(field))
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}

func (s *Server) handleMark(prefix string, mark bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var srcs []string
		if !bindJSON(c, &srcs) {
			return
		}
		key := prefix + ":" + strconv.FormatInt(id, 10)
		if mark {
			c.JSON(http.StatusOK, gin.H{"marked": srcs, "added": s.store.mark(key, srcs)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"unmarked": srcs, "removed": s.store.unmark(key, srcs)})
	}
}
