// Command keytool prepares secrets for audiodesc:
//
//	keytool genkey                  print a random AES-256 key
//	keytool derive [-salt <b64>]    derive a key from a passphrase (argon2id)
//	keytool token -user <id> [-secret s] [-ttl 24h]
//	                                issue a bearer token for the HTTP API
package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/audiodesc/internal/auth"
	"github.com/dmitrijs2005/audiodesc/internal/cryptox"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

const usage = "usage: keytool genkey | derive [-salt <base64>] | token -user <id> [-secret <s>] [-ttl 24h]"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "genkey":
		key, err := cryptox.GenerateKey()
		if err != nil {
			return err
		}
		defer cryptox.Wipe(key)
		fmt.Fprintln(stdout, cryptox.EncodeKey(key))
		return nil
	case "derive":
		return derive(args[1:], stdout, stderr)
	case "token":
		return token(args[1:], stdout)
	default:
		return errors.New(usage)
	}
}

func derive(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	saltFlag := fs.String("salt", "", "base64 salt; a new one is generated when empty")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var salt []byte
	if *saltFlag != "" {
		s, err := base64.StdEncoding.DecodeString(*saltFlag)
		if err != nil {
			return fmt.Errorf("invalid salt: %w", err)
		}
		salt = s
	} else {
		s, err := cryptox.RandomBytes(16)
		if err != nil {
			return err
		}
		salt = s
	}

	fmt.Fprint(stderr, "Enter passphrase: ")
	pass, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stderr)
	if err != nil {
		return fmt.Errorf("read passphrase: %w", err)
	}
	defer cryptox.Wipe(pass)
	if len(pass) == 0 {
		return errors.New("empty passphrase")
	}

	key := cryptox.DeriveKey(pass, salt)
	defer cryptox.Wipe(key)

	fmt.Fprintln(stdout, "salt:", base64.StdEncoding.EncodeToString(salt))
	fmt.Fprintln(stdout, "key: ", cryptox.EncodeKey(key))
	return nil
}

func token(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	user := fs.String("user", "", "user id")
	secret := fs.String("secret", os.Getenv("AUDIODESC_JWT_SECRET"), "JWT secret")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *secret == "" {
		return errors.New("jwt secret is required (-secret or AUDIODESC_JWT_SECRET)")
	}

	t, err := auth.GenerateToken(*user, []byte(*secret), *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, t)
	return nil
}
