package commands

import (
	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

type uploadResult struct {
	ID            string    `json:"id"`
	Secret        string    `json:"secret"`
	DisplayName   string    `json:"display_name"`
	ByteSize      int64     `json:"byte_size"`
	AttemptLimit  int       `json:"attempt_limit"`
	DownloadLimit int       `json:"download_limit"`
	ExpiresAt     time.Time `json:"expires_at"`
}

type sendCmd struct{}

func (sendCmd) Name() string        { return "send" }
func (sendCmd) Description() string { return "Encrypt and send a file to a user" }
func (sendCmd) Usage() string {
	return "send <recipient> <file> [--attempts N] [--downloads N] [--ttl 24h]"
}

func (sendCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	attempts := fs.IntP("attempts", "a", 0, "wrong-secret attempts before the file is destroyed")
	downloads := fs.IntP("downloads", "n", 0, "successful downloads allowed")
	ttl := fs.DurationP("ttl", "t", 0, "lifetime of the transfer")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return ErrUsage
	}
	recipient, path := fs.Arg(0), fs.Arg(1)

	token, err := requireToken()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return errors.New(path + " is a directory")
	}

	fields := []api.Field{
		{Name: "recipient", Value: recipient},
		{Name: "size", Value: strconv.FormatInt(st.Size(), 10)},
	}
	if *attempts > 0 {
		fields = append(fields, api.Field{Name: "attempt_limit", Value: strconv.Itoa(*attempts)})
	}
	if *downloads > 0 {
		fields = append(fields, api.Field{Name: "download_limit", Value: strconv.Itoa(*downloads)})
	}
	if *ttl > 0 {
		fields = append(fields, api.Field{Name: "ttl", Value: ttl.String()})
	}

	resp, body, err := api.PostMultipartFile(ctx, endpoint(cfg, "/api/transfers"), fields, filepath.Base(path), f, token)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		return api.ResponseError(resp.StatusCode, body)
	}
	var res uploadResult
	if err := json.Unmarshal(body, &res); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	fmt.Fprintf(Out, "Sent %s (%s) to %s\n", res.DisplayName, humanize.IBytes(uint64(res.ByteSize)), recipient)
	fmt.Fprintf(Out, "ID:      %s\n", res.ID)
	fmt.Fprintf(Out, "Secret:  %s\n", res.Secret)
	fmt.Fprintf(Out, "Limits:  %d attempts, %d downloads\n", res.AttemptLimit, res.DownloadLimit)
	fmt.Fprintf(Out, "Expires: %s (%s)\n", res.ExpiresAt.Local().Format(time.RFC1123), humanize.Time(res.ExpiresAt))
	fmt.Fprintln(Out, "The secret is shown only once.")
	return nil
}

func init() { mustRegister(SectionTransfers, sendCmd{}) }
