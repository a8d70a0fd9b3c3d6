package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/common"
)

func (a *App) usage(ctx context.Context) error {
	u, err := a.api.Usage(ctx)
	if err != nil {
		return err
	}

	pct := 0.0
	if u.Ceiling > 0 {
		pct = float64(u.BytesUsed) * 100 / float64(u.Ceiling)
	}
	fmt.Fprintf(a.out, "Used %s of %s (%.1f%%)\n", humanBytes(u.BytesUsed), humanBytes(u.Ceiling), pct)
	return nil
}

func (a *App) purge(ctx context.Context, args []string) error {
	fs := newFlagSet("purge")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return usageErr("purge: %v", err)
	}

	if !*yes {
		ok, err := Confirm(a.reader, "Delete ALL of your files?", a.out)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Aborted")
			return nil
		}
	}

	pw, err := GetPassword(a.out, "Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	res, err := a.api.Purge(ctx, string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Deleted %d file(s)", res.Deleted)
	if res.Failed > 0 {
		fmt.Fprintf(a.out, ", %d failed", res.Failed)
	}
	fmt.Fprintln(a.out)
	return nil
}
