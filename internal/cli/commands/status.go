package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
)

type dataResponse struct {
	Result string `json:"result"`
}

type statusCmd struct{}

func (statusCmd) Name() string        { return "status" }
func (statusCmd) Description() string { return "Check whether the stored token is accepted" }
func (statusCmd) Usage() string       { return "status" }

func (statusCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	token, _ := authStore.Load()
	resp, err := api.Do(ctx, http.MethodGet, endpoint(cfg, "/api/user/status"), nil, "", token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return api.ResponseError(resp.StatusCode, body)
	}
	var dr dataResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	fmt.Fprintln(Out, "Status:", dr.Result)
	if login, err := authStore.LoadLogin(); err == nil {
		fmt.Fprintln(Out, "Login:", login)
	}
	return nil
}

type tokenCmd struct{}

func (tokenCmd) Name() string { return "token" }
func (tokenCmd) Description() string {
	return "Print stored auth token (for Authorization: Bearer) or store a new one"
}
func (tokenCmd) Usage() string { return "token [<jwt>]" }

func (tokenCmd) Run(_ context.Context, _ *config.Config, args []string) error {
	switch len(args) {
	case 0:
		token, err := requireToken()
		if err != nil {
			return err
		}
		fmt.Fprintln(Out, token)
		return nil
	case 1:
		if strings.TrimSpace(args[0]) == "" {
			return ErrUsage
		}
		if err := authStore.Save(strings.TrimSpace(args[0])); err != nil {
			return err
		}
		fmt.Fprintln(Out, "Token stored")
		return nil
	}
	return ErrUsage
}

func init() { mustRegister(SectionAccount, statusCmd{}, tokenCmd{}) }
