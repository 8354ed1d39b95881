package commands

import (
	"SecureDrop/internal/cli/api"
	"SecureDrop/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
)

type getCmd struct{}

func (getCmd) Name() string        { return "get" }
func (getCmd) Description() string { return "Download a file sent to you" }
func (getCmd) Usage() string       { return "get <id> <secret> [-o path]" }

func (getCmd) Run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("get", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	output := fs.StringP("output", "o", "", "file or directory to save to")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return ErrUsage
	}
	id, secret := fs.Arg(0), fs.Arg(1)

	token, err := requireToken()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{"secret": secret})
	if err != nil {
		return err
	}
	resp, err := api.Do(ctx, http.MethodPost, transferURL(cfg, id, "/download"), bytes.NewReader(payload), "application/json", token)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return api.ResponseError(resp.StatusCode, body)
	}

	dest := destination(*output, attachmentName(resp.Header.Get("Content-Disposition")))
	n, err := saveFile(dest, resp.Body, resp.ContentLength)
	if err != nil {
		return err
	}
	fmt.Fprintf(Out, "Saved %s (%s)\n", dest, humanize.IBytes(uint64(n)))
	if left := resp.Header.Get("X-Downloads-Remaining"); left != "" {
		fmt.Fprintf(Out, "Downloads remaining: %s\n", left)
	}
	return nil
}

// attachmentName: имя файла из Content-Disposition без каталогов.
func attachmentName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err == nil {
		name := filepath.Base(filepath.Clean("/" + params["filename"]))
		if name != "/" && name != "." && name != string(filepath.Separator) {
			return name
		}
	}
	return "download"
}

func destination(output, name string) string {
	if output == "" {
		return name
	}
	if st, err := os.Stat(output); err == nil && st.IsDir() {
		return filepath.Join(output, name)
	}
	return output
}

// saveFile пишет поток во временный файл рядом с dest и переименовывает его.
// Оборванная загрузка не оставляет частичного файла.
func saveFile(dest string, r io.Reader, expected int64) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".securedrop-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("download interrupted: %w", err)
	}
	if expected >= 0 && n != expected {
		return n, fmt.Errorf("download interrupted: got %d of %d bytes", n, expected)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return n, err
	}
	return n, nil
}

func init() { mustRegister(SectionTransfers, getCmd{}) }
