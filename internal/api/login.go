package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Credentials is the sign-in/sign-up request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult carries the session the backend issues on sign-in. The login
// endpoint puts token and user at the envelope top level, not under data.
type LoginResult struct {
	Token  string
	UserID int
}

type loginEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Token   string `json:"token"`
	User    struct {
		ID int `json:"id"`
	} `json:"user"`
}

// Login exchanges credentials for a token and user id.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	payload, err := json.Marshal(creds)
	if err != nil {
		return LoginResult{}, fmt.Errorf("encode credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("login.php", nil, false), bytes.NewReader(payload))
	if err != nil {
		return LoginResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return LoginResult{}, fmt.Errorf("request login: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoginResult{}, fmt.Errorf("read response: %w", err)
	}

	var env loginEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if !env.Success || env.Token == "" {
		return LoginResult{}, &APIError{Message: env.Message}
	}
	return LoginResult{Token: env.Token, UserID: env.User.ID}, nil
}

// Signup registers a new account. The backend does not sign the user in;
// callers follow up with Login.
func (c *Client) Signup(ctx context.Context, creds Credentials) error {
	return c.post(ctx, "signup.php", creds, nil)
}
