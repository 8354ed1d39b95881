package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
)

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginCmd struct{}

func (loginCmd) Name() string        { return "login" }
func (loginCmd) Description() string { return "Login and store auth cookie" }
func (loginCmd) Usage() string       { return "login <login> <password>" }

func (loginCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 2 {
		return ErrUsage
	}
	req := LoginRequest{Login: args[0], Password: args[1]}
	resp, body, err := api.PostJSON(ctx, endpoint(cfg, "/api/user/login"), req, "")
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		if err := api.PersistAuthFromResponse(resp, authStore); err != nil {
			return fmt.Errorf("saving auth: %w", err)
		}
		if err := authStore.SaveLogin(req.Login); err != nil {
			return fmt.Errorf("saving login: %w", err)
		}
		fmt.Fprintln(Out, "Logged in successfully")
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return errors.New("invalid login or password")
	}
	return fmt.Errorf("server error: %s", strings.TrimSpace(string(body)))
}

type logoutCmd struct{}

func (logoutCmd) Name() string        { return "logout" }
func (logoutCmd) Description() string { return "Forget stored auth token" }
func (logoutCmd) Usage() string       { return "logout" }

func (logoutCmd) Run(_ context.Context, _ *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	if err := authStore.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(Out, "Logged out")
	return nil
}

func init() { mustRegister(SectionAccount, loginCmd{}, logoutCmd{}) }
