package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"stakegov/config"
	"stakegov/crypto"
	"stakegov/gateway/middleware"
)

const (
	keygenCommand  = "keygen"
	addressCommand = "address"
	tokenCommand   = "token"
	configCommand  = "config"

	defaultSecretEnv = "GOVERND_HMAC_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case addressCommand:
		err = runAddress(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout, time.Now())
	case configCommand:
		err = runConfig(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keyOut := fs.String("out", "", "Write the hex private key to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	encoded := key.Hex()
	if *keyOut != "" {
		if err := os.WriteFile(*keyOut, []byte(encoded+"\n"), 0o600); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
	} else {
		fmt.Fprintf(out, "private key: %s\n", encoded)
	}
	fmt.Fprintf(out, "address: %s\n", key.PubKey().Address())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	keyHex := fs.String("key", "", "Hex-encoded private key")
	keyFile := fs.String("key-file", "", "File containing a hex-encoded private key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw := strings.TrimSpace(*keyHex)
	if raw == "" && *keyFile != "" {
		data, err := os.ReadFile(*keyFile)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return fmt.Errorf("one of -key or -key-file is required")
	}
	key, err := crypto.ParsePrivateKeyHex(raw)
	if err != nil {
		return fmt.Errorf("load key: %w", err)
	}
	fmt.Fprintln(out, key.PubKey().Address())
	return nil
}

func runToken(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("sub", "", "Caller address (mdot...) the token authenticates")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable holding the HMAC secret")
	issuer := fs.String("issuer", "govctl", "Token issuer")
	audience := fs.String("audience", "governd", "Token audience")
	scopes := fs.String("scopes", middleware.ScopeRead+","+middleware.ScopeWrite, "Comma-separated scopes")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	secret, err := readSecret(*secretEnv)
	if err != nil {
		return err
	}
	var scopeList []string
	for _, scope := range strings.Split(*scopes, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			scopeList = append(scopeList, trimmed)
		}
	}
	token, err := middleware.IssueToken(secret, *issuer, *audience, strings.TrimSpace(*subject), scopeList, *ttl, now)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// readSecret returns the HMAC secret from envVar, prompting on the terminal
// when the variable is unset.
func readSecret(envVar string) (string, error) {
	if value, ok := os.LookupEnv(envVar); ok {
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is set but empty", envVar)
		}
		return value, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("HMAC secret required; set %s or run interactively", envVar)
	}
	fmt.Fprint(os.Stderr, "Enter governd HMAC secret: ")
	bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	if strings.TrimSpace(string(bytes)) == "" {
		return "", errors.New("HMAC secret cannot be empty")
	}
	return string(bytes), nil
}

func runConfig(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("config requires a subcommand: validate or init")
	}
	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
		path := fs.String("config", "stakegov.toml", "Runtime config file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		cfg, err := config.Load(*path)
		if err != nil {
			return err
		}
		resolved, err := cfg.Resolve()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s): supply %s across %d accounts, voting window %s, minimum participation %s, weight policy %s\n",
			resolved.Name, resolved.Symbol, resolved.InitialSupply.Dec(), len(resolved.Credits),
			resolved.Policy.VotingWindow, resolved.Policy.MinimumParticipation.Dec(), resolved.Policy.WeightPolicy)
		return nil
	case "init":
		fs := flag.NewFlagSet("config init", flag.ContinueOnError)
		path := fs.String("out", "stakegov.toml", "Destination file")
		owner := fs.String("owner", "", "Genesis owner address")
		force := fs.Bool("force", false, "Overwrite an existing file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if !*force {
			if _, err := os.Stat(*path); err == nil {
				return fmt.Errorf("config file %s already exists (use -force to overwrite)", *path)
			} else if !os.IsNotExist(err) {
				return err
			}
		}
		cfg := config.Default()
		cfg.Genesis.Owner = strings.TrimSpace(*owner)
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(*path, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", *path)
		return nil
	default:
		return fmt.Errorf("unknown config subcommand %q", args[0])
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: govctl <command> [flags]

Commands:
  %s            generate a key and print its mdot address
  %s           derive the mdot address of a private key
  %s             mint a bearer token for governd
  %s validate   check a runtime config file
  %s init       write a default runtime config file
`, keygenCommand, addressCommand, tokenCommand, configCommand, configCommand)
}
