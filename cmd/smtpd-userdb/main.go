// Command smtpd-userdb manages a userauth YAML database: adding users
// with scrypt-hashed passwords, so it never needs to handle a plaintext
// password file.
package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"flag"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/relaysmtp/smtpd/internal/userauth"
)

var (
	dbFname  = flag.String("database", "", "database file")
	adduser  = flag.String("add_user", "", "user to add")
	password = flag.String("password", "",
		"password for the user to add (will prompt if missing)")
	disableChecks = flag.Bool("dangerously_disable_checks", false,
		"disable security checks - DANGEROUS, use for testing only")
)

func main() {
	flag.Parse()

	if *dbFname == "" {
		fmt.Printf("database name missing, forgot --database?\n")
		os.Exit(1)
	}

	db, err := userauth.Load(*dbFname)
	if err != nil {
		fmt.Printf("error loading database: %v\n", err)
		os.Exit(1)
	}

	if *adduser == "" {
		fmt.Printf("database loaded, %d user(s)\n", db.Len())
		return
	}

	if *password == "" {
		fmt.Printf("Password: ")
		p1, err := terminal.ReadPassword(int(syscall.Stdin))
		fmt.Printf("\n")
		if err != nil {
			fmt.Printf("error reading password: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Confirm password: ")
		p2, err := terminal.ReadPassword(int(syscall.Stdin))
		fmt.Printf("\n")
		if err != nil {
			fmt.Printf("error reading password: %v\n", err)
			os.Exit(1)
		}

		if !bytes.Equal(p1, p2) {
			fmt.Printf("passwords don't match\n")
			os.Exit(1)
		}

		*password = string(p1)
	}

	if !*disableChecks && len(*password) < 8 {
		fmt.Printf("password is too short\n")
		os.Exit(1)
	}

	if err := db.AddUser(*adduser, *password); err != nil {
		fmt.Printf("error adding user: %v\n", err)
		os.Exit(1)
	}

	if err := db.Write(); err != nil {
		fmt.Printf("error writing database: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("added user\n")
}
