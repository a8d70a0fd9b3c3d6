// Command useradd seeds a user into the directory tables, for development
// and first-admin bootstrap. Projects and memberships are plain SQL.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"golang.org/x/term"
)

func main() {
	dsn := flag.String("d", os.Getenv("FILEVAULT_DATABASE_DSN"), "PostgreSQL DSN")
	userName := flag.String("u", "", "username")
	admin := flag.Bool("admin", false, "grant administrator rights")
	flag.Parse()

	if *dsn == "" || *userName == "" {
		flag.Usage()
		os.Exit(2)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		log.Fatalf("reading password: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	dir := services.NewDirectoryService(db, rm, nil, 0)
	u, err := dir.CreateUser(ctx, *userName, string(pw), *admin)
	if err != nil {
		log.Fatalf("creating user: %v", err)
	}

	fmt.Printf("created user %s (%s), admin=%t\n", u.UserName, u.ID, u.IsAdmin)
}
