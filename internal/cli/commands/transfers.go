package commands

import (
	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

type infoCmd struct{}

func (infoCmd) Name() string        { return "info" }
func (infoCmd) Description() string { return "Show transfer metadata" }
func (infoCmd) Usage() string       { return "info <id>" }

func (infoCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	token, err := requireToken()
	if err != nil {
		return err
	}
	var v transferView
	if err := api.GetJSON(ctx, transferURL(cfg, args[0], ""), token, &v); err != nil {
		return err
	}

	fmt.Fprintf(Out, "ID:        %s\n", v.ID)
	fmt.Fprintf(Out, "File:      %s (%s, %s)\n", v.DisplayName, humanize.IBytes(uint64(v.ByteSize)), v.ContentType)
	fmt.Fprintf(Out, "Status:    %s\n", statusLine(v))
	fmt.Fprintf(Out, "Attempts:  %d of %d used\n", v.AttemptCount, v.AttemptLimit)
	fmt.Fprintf(Out, "Downloads: %d of %d used\n", v.DownloadCount, v.DownloadLimit)
	fmt.Fprintf(Out, "Created:   %s\n", v.CreatedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(Out, "Expires:   %s\n", v.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

type sentCmd struct{}

func (sentCmd) Name() string        { return "sent" }
func (sentCmd) Description() string { return "List files you have sent" }
func (sentCmd) Usage() string       { return "sent" }

func (sentCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	return listTransfers(ctx, cfg, args, "/api/transfers/sent")
}

type inboxCmd struct{}

func (inboxCmd) Name() string        { return "inbox" }
func (inboxCmd) Description() string { return "List files waiting for you" }
func (inboxCmd) Usage() string       { return "inbox" }

func (inboxCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	return listTransfers(ctx, cfg, args, "/api/transfers/received")
}

func listTransfers(ctx context.Context, cfg *config.Config, args []string, path string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	token, err := requireToken()
	if err != nil {
		return err
	}
	var list []transferView
	if err := api.GetJSON(ctx, endpoint(cfg, path), token, &list); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(Out, "No transfers")
		return nil
	}
	for _, v := range list {
		fmt.Fprintf(Out, "- %s  %s  %s  %s\n", v.ID, v.DisplayName, humanize.IBytes(uint64(v.ByteSize)), statusLine(v))
	}
	fmt.Fprintf(Out, "Total: %d\n", len(list))
	return nil
}

func statusLine(v transferView) string {
	if v.terminal() {
		if v.TerminalReason != "" {
			return v.Status + " (" + v.TerminalReason + ")"
		}
		return v.Status
	}
	return fmt.Sprintf("%s, %d attempts and %d downloads left, expires %s",
		v.Status, v.AttemptsRemaining, v.DownloadsRemaining, humanize.Time(v.ExpiresAt))
}

type revokeCmd struct{}

func (revokeCmd) Name() string        { return "revoke" }
func (revokeCmd) Description() string { return "Destroy a file you have sent" }
func (revokeCmd) Usage() string       { return "revoke <id>" }

func (revokeCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	token, err := requireToken()
	if err != nil {
		return err
	}
	if _, err := api.Delete(ctx, transferURL(cfg, args[0], ""), token); err != nil {
		return err
	}
	fmt.Fprintf(Out, "Revoked %s\n", args[0])
	return nil
}

func init() { mustRegister(SectionTransfers, infoCmd{}, sentCmd{}, inboxCmd{}, revokeCmd{}) }
