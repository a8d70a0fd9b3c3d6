package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/filevault/internal/client/session"
	"github.com/dmitrijs2005/filevault/internal/common"
)

func (a *App) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("login <username>")
	}
	userName := args[0]

	pw, err := GetPassword(a.out, "Password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	token, err := a.api.Login(ctx, userName, string(pw))
	if err != nil {
		return err
	}

	if err := a.sessions.Save(ctx, session.Session{ServerURL: a.api.BaseURL(), UserName: userName, Token: token}); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Logged in to %s as %s\n", a.api.BaseURL(), userName)
	return nil
}

func (a *App) logout(ctx context.Context) error {
	if err := a.sessions.Delete(ctx, a.api.BaseURL()); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}
