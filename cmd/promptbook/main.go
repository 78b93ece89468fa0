package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Fillsogood/promptbook/cmd/identity"
	"github.com/Fillsogood/promptbook/cmd/internal/app"
)

func main() {
	createAdmin := flag.Bool("create-admin", false, "create an admin account and exit")
	deactivate := flag.Bool("deactivate", false, "disable the account given by -email, revoke its sessions and exit")
	activate := flag.Bool("activate", false, "re-enable the account given by -email and exit")
	email := flag.String("email", "", "account email (with -create-admin, -activate, -deactivate)")
	username := flag.String("username", "", "admin username (with -create-admin)")
	flag.Parse()

	if err := run(*createAdmin, *deactivate, *activate, *email, *username); err != nil {
		log.Fatal(err)
	}
}

func run(createAdmin, deactivate, activate bool, email, username string) error {
	n := 0
	for _, set := range []bool{createAdmin, deactivate, activate} {
		if set {
			n++
		}
	}
	if n == 0 {
		return app.Run()
	}
	if n > 1 {
		return errors.New("-create-admin, -activate and -deactivate are mutually exclusive")
	}
	if strings.TrimSpace(email) == "" {
		return errors.New("-email is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if createAdmin {
		pw, err := adminPassword()
		if err != nil {
			return err
		}
		u, err := app.CreateAdmin(ctx, identity.RegisterInput{Email: email, Username: username, Password: pw})
		if err != nil {
			return err
		}
		fmt.Println(u.ID)
		return nil
	}

	u, err := app.SetAccountActive(ctx, email, activate)
	if err != nil {
		return err
	}
	fmt.Printf("%s active=%t\n", u.ID, u.IsActive)
	return nil
}

// adminPassword reads PROMPTBOOK_ADMIN_PASSWORD, falling back to the first line of stdin.
func adminPassword() (string, error) {
	if pw := os.Getenv("PROMPTBOOK_ADMIN_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("create-admin: no password on stdin")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
