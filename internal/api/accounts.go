package api

import (
	"context"
	"errors"

	"github.com/nghyane/board-client/internal/client"
	"github.com/nghyane/board-client/internal/payload"
)

// RequestAuthCode asks the backend to mail a verification code.
func (s *Service) RequestAuthCode(ctx context.Context, email string, kind AuthCodeType) error {
	_, err := s.call(ctx, "POST", "/apis/accounts/authcode/request", map[string]any{
		"email": email,
		"type":  string(kind),
	}, nil)
	return err
}

// VerifyAuthCode checks a code. For register and lost it returns the
// verified token the follow-up call needs; otherwise the token is "".
func (s *Service) VerifyAuthCode(ctx context.Context, email, code string, kind AuthCodeType) (string, error) {
	var out struct {
		Token string `json:"verified_token"`
	}
	if _, err := s.call(ctx, "POST", "/apis/accounts/authcode/verify", map[string]any{
		"email":    email,
		"authcode": code,
		"type":     string(kind),
	}, &out); err != nil {
		return "", err
	}
	if kind.IssuesToken() && out.Token == "" {
		return "", errors.New("api: verification returned no token")
	}
	return out.Token, nil
}

// Registration is the sign-up form. Token is the verified token from
// VerifyAuthCode.
type Registration struct {
	Username  string
	Email     string
	Token     string
	Password  string
	Password2 string
	Image     *client.File
}

// Register creates an account with a multipart body.
func (s *Service) Register(ctx context.Context, r Registration) (*User, error) {
	form := payload.NewObject().
		Set("username", r.Username).
		Set("email", r.Email).
		Set("token", r.Token).
		Set("password", r.Password).
		Set("password2", r.Password2)
	if r.Image != nil {
		form.Set("imagefile", r.Image)
	}
	var out User
	if _, err := s.call(ctx, "POST", "/apis/accounts/register", client.Call{Body: form, UseFormData: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccountUpdate changes profile fields. Blank fields are left unchanged.
type AccountUpdate struct {
	Username string
	Image    *client.File
}

// UpdateAccount patches the profile of userID with a multipart body.
func (s *Service) UpdateAccount(ctx context.Context, userID int64, u AccountUpdate) (*User, error) {
	form := payload.NewObject()
	if u.Username != "" {
		form.Set("username", u.Username)
	}
	if u.Image != nil {
		form.Set("imagefile", u.Image)
	}
	var out User
	path := idPath("/apis/accounts/account/update/%d", userID)
	if _, err := s.call(ctx, "PATCH", path, client.Call{Body: form, UseFormData: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PasswordChange is the JSON body of a password update.
type PasswordChange struct {
	UserID          int64  `json:"user_id"`
	Password        string `json:"password"`
	NewPassword     string `json:"newpassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// UpdatePassword changes the password of the logged-in user.
func (s *Service) UpdatePassword(ctx context.Context, p PasswordChange) (*User, error) {
	var out User
	path := idPath("/apis/accounts/account/password/update/%d", p.UserID)
	if _, err := s.call(ctx, "PATCH", path, p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PasswordReset is the JSON body of a lost-password reset. Token is the
// verified token from VerifyAuthCode with AuthCodeLost.
type PasswordReset struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	NewPassword     string `json:"newpassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// ResetLostPassword sets a new password without logging in.
func (s *Service) ResetLostPassword(ctx context.Context, p PasswordReset) (*User, error) {
	var out User
	if _, err := s.call(ctx, "PATCH", "/apis/accounts/lost/password/resetting", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAccount removes the account of userID.
func (s *Service) DeleteAccount(ctx context.Context, userID int64) error {
	_, err := s.call(ctx, "DELETE", idPath("/apis/accounts/account/delete/%d", userID), nil, nil)
	return err
}
