package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mmcdole/handy/internal/adapter"
	"github.com/mmcdole/handy/internal/adapter/api"
	"github.com/mmcdole/handy/internal/domain"
	"github.com/mmcdole/handy/internal/query"
	"github.com/mmcdole/handy/internal/service"
	"github.com/mmcdole/handy/internal/store"
	"github.com/mmcdole/handy/internal/tui"
	"golang.org/x/term"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usage = `Usage: handy [flags] [command]

Commands:
  (none)           open the marketplace
  login            sign in with email and password
  register         create a customer account
  logout           sign out and forget the stored session
  set-url <url>    point the client at another API server

Flags:
`

func main() {
	var showVersion bool
	var configDir string
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configDir, "config", adapter.DefaultConfigPath(), "config directory")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("handy %s\n", Version)
		return
	}

	if err := run(configDir, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir string, args []string) error {
	command := ""
	if len(args) > 0 {
		command = args[0]
	}

	// set-url works without a valid config
	if command == "set-url" {
		if len(args) != 2 {
			return errors.New("usage: handy set-url <url>")
		}
		if err := adapter.SaveBaseURL(configDir, args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ API server set to %s\n", args[1])
		return nil
	}

	cfg, err := adapter.LoadConfigFrom(configDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := adapter.SetupLogger(cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = adapter.NullLogger()
		closeLog = func() error { return nil }
	}
	defer closeLog()
	slog.SetDefault(logger)

	logger.Info("starting handy", "version", Version, "api", cfg.API.BaseURL)

	dbPath, err := adapter.ExpandHome(cfg.Storage.SessionDB)
	if err != nil {
		return err
	}
	sessions, err := store.NewSessionStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer sessions.Close()

	client := api.NewClient(api.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, sessions, logger)

	app := service.NewApp(client, sessions, serviceOptions(cfg), logger)
	defer app.Close()
	client.OnAuthFailure(app.Session.HandleAuthFailure)

	switch command {
	case "":
		return runTUI(app, logger)
	case "login":
		return runLogin(app)
	case "register":
		return runRegister(app)
	case "logout":
		if err := app.Session.Logout(); err != nil {
			return err
		}
		fmt.Println("✓ Signed out")
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// serviceOptions maps the config file onto the service layer
func serviceOptions(cfg *adapter.Config) service.Options {
	base := query.DefaultPolicy()
	base.StaleTime = cfg.Cache.StaleTime
	base.GCTime = cfg.Cache.GCTime
	base.Retry = cfg.Cache.Retry
	base.RetryDelay = cfg.Cache.RetryDelay

	p := service.DefaultPolicies()
	p.Default = base

	ref := base
	ref.RefetchOnFocus = false
	if ref.StaleTime < p.Reference.StaleTime {
		ref.StaleTime = p.Reference.StaleTime
	}
	p.Reference = ref

	p.Providers = polling(base, cfg.Polling.Providers)
	p.Unread = polling(base, cfg.Polling.Notifications)

	return service.Options{
		Policies:       p,
		RequestTimeout: cfg.API.Timeout,
		Session: service.SessionOptions{
			CheckInterval: cfg.Polling.Session,
			GCInterval:    cfg.Polling.GC,
		},
	}
}

func polling(base query.Policy, interval time.Duration) query.Policy {
	p := base
	p.StaleTime = interval / 2
	p.RefetchInterval = interval
	return p
}

func runTUI(app *service.App, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	user, err := app.Session.Restore(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotSignedIn) {
			fmt.Println("You are not signed in. Run `handy login` first.")
			return nil
		}
		return errors.New(domain.UserMessage(err))
	}
	logger.Info("starting TUI", "user", user.ID)

	if err := tui.Run(app); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

func runLogin(app *service.App) error {
	reader := bufio.NewReader(os.Stdin)
	email, err := prompt(reader, "Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword(reader, "Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := app.Session.Login(ctx, domain.Credentials{Email: email, Password: password})
	if err != nil {
		return loginError(err)
	}
	fmt.Printf("✓ Signed in as %s\n", displayName(user))
	return nil
}

func runRegister(app *service.App) error {
	reader := bufio.NewReader(os.Stdin)
	name, err := prompt(reader, "Full name: ")
	if err != nil {
		return err
	}
	email, err := prompt(reader, "Email: ")
	if err != nil {
		return err
	}
	phone, err := prompt(reader, "Phone (optional): ")
	if err != nil {
		return err
	}
	password, err := promptPassword(reader, "Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, err := app.Session.Register(ctx, domain.Registration{
		Email:    email,
		Password: password,
		FullName: name,
		Phone:    phone,
	})
	if err != nil {
		return loginError(err)
	}
	fmt.Printf("✓ Welcome, %s\n", displayName(user))
	return nil
}

func loginError(err error) error {
	switch {
	case errors.Is(err, domain.ErrRoleMismatch):
		return errors.New("this app is for customer accounts only")
	case errors.Is(err, domain.ErrSuspended):
		return errors.New("this account has been suspended")
	case domain.KindOf(err) == domain.KindAuth:
		return errors.New("invalid email or password")
	}
	return errors.New(domain.UserMessage(err))
}

func displayName(u *domain.User) string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}

func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	input, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func promptPassword(r *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(r, "")
	}
	b, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}
