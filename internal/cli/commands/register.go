package commands

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
)

type RegisterRequest struct {
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerCmd struct{}

func (registerCmd) Name() string        { return "register" }
func (registerCmd) Description() string { return "Create an account and store auth cookie" }
func (registerCmd) Usage() string       { return "register <login> <email> <password>" }

func (registerCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return ErrUsage
	}
	req := RegisterRequest{Login: args[0], Email: args[1], Password: args[2]}
	resp, body, err := api.PostJSON(ctx, endpoint(cfg, "/api/user/register"), req, "")
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		if err := api.PersistAuthFromResponse(resp, authStore); err != nil {
			return fmt.Errorf("saving auth: %w", err)
		}
		if err := authStore.SaveLogin(req.Login); err != nil {
			return fmt.Errorf("saving login: %w", err)
		}
		fmt.Fprintf(Out, "Registered as %s\n", req.Login)
		return nil
	case http.StatusConflict:
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = "login or email already in use"
		}
		return fmt.Errorf("conflict: %s", msg)
	}
	return fmt.Errorf("server error: %s", strings.TrimSpace(string(body)))
}

func init() { mustRegister(SectionAccount, registerCmd{}) }
