package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const LoginPath = "/auth/login"

var ErrInvalidCredentials = errors.New("Invalid credentials")

type AdminUser struct {
	Role        string  `json:"role"`
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phoneNumber"`
}

type LoginResult struct {
	User  AdminUser
	Token string
}

// LoginError carries the backend's explanation of a refused login.
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return ErrInvalidCredentials }

// Login exchanges credentials for an admin user and bearer token. A refusal
// is a *LoginError with the backend's message, or "Invalid credentials".
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	resp, err := c.Do(ctx, http.MethodPost, LoginPath, map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			AdminUser AdminUser `json:"adminUser"`
			Token     string    `json:"token"`
		} `json:"data"`
	}
	decodeErr := json.Unmarshal(resp.Body, &payload)
	if !resp.OK() || decodeErr != nil || !payload.Success {
		msg := strings.TrimSpace(payload.Message)
		if msg == "" {
			msg = ErrInvalidCredentials.Error()
		}
		return nil, &LoginError{Message: msg}
	}
	if strings.TrimSpace(payload.Data.Token) == "" {
		return nil, &LoginError{Message: ErrInvalidCredentials.Error()}
	}
	return &LoginResult{User: payload.Data.AdminUser, Token: payload.Data.Token}, nil
}
