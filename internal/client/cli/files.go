package cli

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/filevault/internal/client/client"
	"github.com/dmitrijs2005/filevault/internal/client/models"
)

func (a *App) upload(ctx context.Context, args []string) error {
	fs := newFlagSet("upload")
	name := fs.String("name", "", "display name (default: file name)")
	desc := fs.String("desc", "", "description")
	mimeType := fs.String("type", "", "MIME type (default: from extension)")
	if err := fs.Parse(args); err != nil {
		return usageErr("upload: %v", err)
	}
	if fs.NArg() != 2 {
		return usageErr("upload [-name n] [-desc d] [-type mime] <project> <path>")
	}
	projectID, path := fs.Arg(0), fs.Arg(1)

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
		return fmt.Errorf("%s is a directory", path)
	}

	if *mimeType == "" {
		*mimeType = mime.TypeByExtension(filepath.Ext(path))
	}
	if *mimeType == "" {
		*mimeType = "application/octet-stream"
	}

	res, err := a.api.Upload(ctx, projectID, client.UploadInput{
		Name:        *name,
		FileName:    filepath.Base(path),
		MimeType:    *mimeType,
		Description: *desc,
		Size:        st.Size(),
		Body:        f,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Uploaded %s (%s) as %s\n", res.FileName, humanBytes(res.Size), res.ID)
	return nil
}

func (a *App) list(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("ls <project>")
	}

	files, err := a.api.List(ctx, args[0])
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintln(a.out, "No files")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIZE\tTYPE\tCREATED\tFLAGS")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, humanBytes(f.Size), f.MimeType, shortTime(f.CreatedAt), flags(f))
	}
	return tw.Flush()
}

func flags(f models.File) string {
	var out []string
	if f.Edited {
		out = append(out, "edited")
	}
	if f.Tombstoned {
		out = append(out, "deleted-by-admin")
	}
	if len(out) == 0 {
		return "-"
	}
	return strings.Join(out, ",")
}

func (a *App) info(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("info <file-id>")
	}

	f, err := a.api.Get(ctx, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", f.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", f.Name)
	fmt.Fprintf(tw, "File name:\t%s\n", f.FileName)
	fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanBytes(f.Size), f.Size)
	fmt.Fprintf(tw, "Type:\t%s\n", f.MimeType)
	fmt.Fprintf(tw, "Project:\t%s\n", f.ProjectID)
	fmt.Fprintf(tw, "Owner:\t%s\n", f.OwnerID)
	fmt.Fprintf(tw, "Created:\t%s\n", shortTime(f.CreatedAt))
	fmt.Fprintf(tw, "Description:\t%s\n", f.Description)
	fmt.Fprintf(tw, "Flags:\t%s\n", flags(*f))
	return tw.Flush()
}

func (a *App) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usageErr("rm <file-id>")
	}
	if err := a.api.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", args[0])
	return nil
}

func (a *App) describe(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return usageErr("describe <file-id> <text...>")
	}
	f, err := a.api.Describe(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated description of %s\n", f.ID)
	return nil
}
