package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

func (a *App) link(ctx context.Context, args []string) error {
	fs := newFlagSet("link")
	preview := fs.Bool("preview", false, "open inline in a browser")
	if err := fs.Parse(args); err != nil {
		return usageErr("link: %v", err)
	}
	if fs.NArg() != 1 {
		return usageErr("link [-preview] <file-id>")
	}

	tok, err := a.api.IssueToken(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, a.api.DownloadURL(tok.Token, *preview))
	fmt.Fprintf(a.out, "valid until %s\n", tok.ExpiresAt.Local().Format(time.TimeOnly))
	return nil
}

// download writes into a temporary file next to the target and renames it
// only after the whole body arrived, so an aborted transfer never leaves a
// truncated file under the real name.
func (a *App) download(ctx context.Context, args []string) error {
	fs := newFlagSet("download")
	output := fs.String("o", "", `output path ("-" for stdout, default: original file name)`)
	preview := fs.Bool("preview", false, "request inline disposition")
	if err := fs.Parse(args); err != nil {
		return usageErr("download: %v", err)
	}
	if fs.NArg() != 1 {
		return usageErr("download [-o path] [-preview] <file-id>")
	}
	fileID := fs.Arg(0)

	target := *output
	if target == "" {
		f, err := a.api.Get(ctx, fileID)
		if err != nil {
			return err
		}
		target = filepath.Base(f.FileName)
		if target == "." || target == string(filepath.Separator) || target == "" {
			target = fileID
		}
	}

	tok, err := a.api.IssueToken(ctx, fileID)
	if err != nil {
		return err
	}

	if target == "-" {
		_, err := a.api.Download(ctx, tok.Token, *preview, a.out)
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".filevault-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := a.api.Download(ctx, tok.Token, *preview, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Saved %s (%s)\n", target, humanBytes(n))
	return nil
}
