// Package main provides the entry point for the HighFlow desktop auth core.
// It exposes the login, logout, and whoami operations on the command line,
// the same narrow API the rest of the desktop product wires into.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/HighGarden-Studio/HighFlow-sub016/internal/api"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/auth"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/config"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/logging"
	"github.com/HighGarden-Studio/HighFlow-sub016/internal/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var login bool
	var logout bool
	var whoami bool
	var noBrowser bool
	var callbackPort int
	var configPath string
	var debug bool

	flag.BoolVar(&login, "login", false, "Sign in to HighFlow")
	flag.BoolVar(&logout, "logout", false, "Sign out of HighFlow")
	flag.BoolVar(&whoami, "whoami", false, "Show the signed-in account")
	flag.BoolVar(&noBrowser, "no-browser", false, "Do not open a browser; print the sign-in URL instead")
	flag.IntVar(&callbackPort, "callback-port", 0, "Override the local OAuth callback port")
	flag.StringVar(&configPath, "config", "", "Path to the configuration file")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad == nil {
			log.Debug("loaded environment overrides from .env")
		}
	}

	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		log.Fatalf("failed to resolve data directory: %v", err)
	}

	if cfg.LoggingToFile {
		logDir := cfg.LogDir
		if logDir == "" {
			logDir = filepath.Join(dataDir, "logs")
		}
		if err = logging.EnableFileOutput(logDir); err != nil {
			log.Warnf("file logging disabled: %v", err)
		}
	}

	credStore := store.NewCredentialStore(dataDir)
	manager := auth.NewManager(cfg, api.NewClient(cfg.BackendBaseURL), credStore)
	ctx := context.Background()

	switch {
	case login:
		runLogin(ctx, manager, noBrowser, callbackPort)
	case logout:
		runLogout(ctx, manager)
	case whoami:
		runWhoami(ctx, manager)
	default:
		fmt.Printf("HighFlow Auth %s (%s, built %s)\n\n", Version, Commit, BuildDate)
		flag.Usage()
		os.Exit(2)
	}
}

func runLogin(ctx context.Context, manager *auth.Manager, noBrowser bool, callbackPort int) {
	opts := &auth.LoginOptions{
		NoBrowser:    noBrowser,
		CallbackPort: callbackPort,
		Prompt:       stdinPrompt,
	}
	session, err := manager.Login(ctx, opts)
	if err != nil {
		log.Debugf("login failed: %v", err)
		fmt.Fprintln(os.Stderr, auth.UserFriendlyMessage(err))
		os.Exit(1)
	}
	fmt.Printf("Signed in as %s (%s)\n", session.User.DisplayName, session.User.Email)
}

func runLogout(ctx context.Context, manager *auth.Manager) {
	if err := manager.Logout(ctx); err != nil {
		log.Fatalf("logout failed: %v", err)
	}
	fmt.Println("Signed out.")
}

func runWhoami(ctx context.Context, manager *auth.Manager) {
	user := manager.CurrentUser(ctx)
	if user == nil {
		fmt.Println("Not signed in.")
		os.Exit(1)
	}
	fmt.Printf("%s <%s>\n", user.DisplayName, user.Email)
	fmt.Printf("Credits: %.2f\n", user.CreditBalance)
}

// stdinPrompt reads one line from standard input for the manual callback path.
func stdinPrompt(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
