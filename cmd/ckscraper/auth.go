package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ckscraper/pkg/auth"
	"ckscraper/pkg/config"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/site"
	"ckscraper/pkg/ui"
)

type authFlags struct {
	host   string
	verify bool
}

func newAuthCmd(a *app) *cobra.Command {
	var f authFlags

	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored site accounts",
		Long: `Manage the site accounts used to read favorites.

Accounts are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

CKSCRAPER_USERNAME and CKSCRAPER_PASSWORD override stored accounts.`,
	}

	loginCmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Store an account for a site",
		Example: `  # Interactive login
  ckscraper auth login -w coomer.su

  # Check the password against the site before saving it
  ckscraper auth login -w kemono.su myname --verify`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogin(cmd, f, args)
		},
	}
	loginCmd.Flags().BoolVar(&f.verify, "verify", false, "log in to the site before saving the account")

	logoutCmd := &cobra.Command{
		Use:     "logout <username>",
		Short:   "Remove a stored account",
		Example: `  ckscraper auth logout -w coomer.su myname`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLogout(f, args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		Long:  `List stored accounts with masked passwords. With --web-site only the accounts of that site are shown.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runList(f)
		},
	}

	authCmd.PersistentFlags().StringVarP(&f.host, "web-site", "w", "", "site host the account belongs to")
	authCmd.AddCommand(loginCmd, logoutCmd, listCmd)
	return authCmd
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func (a *app) manager() (*auth.Manager, error) {
	manager, err := a.newManager()
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "initializing credential manager")
	}
	return manager, nil
}

func (a *app) runLogin(cmd *cobra.Command, f authFlags, args []string) error {
	host := normalizeHost(f.host)
	if host == "" {
		return usageError("--web-site is required")
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}

	auth.ShowLoginGuide(a.errOut)
	fmt.Fprintln(a.errOut)

	var username, password string
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
		fmt.Fprint(a.errOut, "Enter your password:")
		secret, err := a.readPassword()
		fmt.Fprintln(a.errOut)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeAuth, err, "reading password")
		}
		password = strings.TrimRight(string(secret), "\r\n")
	} else {
		username, password, err = auth.Prompt(a.in, a.errOut, a.readPassword)
		if err != nil {
			return errs.Wrap(errs.ErrorTypeAuth, err, "reading credentials")
		}
	}

	if f.verify {
		if err := a.verifyLogin(cmd, host, username, password); err != nil {
			return err
		}
	}

	if existing, _ := manager.Retrieve(host, username); existing != nil {
		ui.PrintWarning("Updating stored account %s on %s", username, host)
	}

	account := &auth.Account{
		Host:         host,
		Username:     username,
		Password:     password,
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "storing account")
	}

	ui.PrintSuccess(fmt.Sprintf("Account saved: %s on %s", username, host))
	ui.PrintMessage(fmt.Sprintf("Use it with: ckscraper -w %s -f -a list-files --account %s", host, username))
	return nil
}

func (a *app) verifyLogin(cmd *cobra.Command, host, username, password string) error {
	cfg, err := config.Load(a.configFile, map[string]interface{}{"web-site": host})
	if err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, err, "loading configuration")
	}

	client := site.NewClient(cfg.Site, site.WithLogger(logger.GetLogger()))
	if _, err := client.Authenticate(cmd.Context(), username, password); err != nil {
		return err
	}
	ui.PrintInfo("Login verified", host)
	return nil
}

func (a *app) runLogout(f authFlags, username string) error {
	host := normalizeHost(f.host)
	if host == "" {
		return usageError("--web-site is required")
	}
	manager, err := a.manager()
	if err != nil {
		return err
	}

	if err := manager.Delete(host, username); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, err, "removing account %s", username)
	}
	ui.PrintSuccess(fmt.Sprintf("Account removed: %s on %s", username, host))
	return nil
}

func (a *app) runList(f authFlags) error {
	manager, err := a.manager()
	if err != nil {
		return err
	}
	accounts, err := manager.List()
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "listing accounts")
	}

	host := normalizeHost(f.host)
	n := 0
	for _, account := range accounts {
		if host != "" && !strings.EqualFold(account.Host, host) {
			continue
		}
		n++
		sanitized := auth.SanitizeAccount(account)
		fmt.Fprintf(a.out, "%d. %s on %s\n", n, ui.Cyan(sanitized.Username), sanitized.Host)
		fmt.Fprintf(a.out, "   Password: %s\n", sanitized.Password)
		if !sanitized.LastModified.IsZero() {
			fmt.Fprintf(a.out, "   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		}
	}

	if n == 0 {
		ui.PrintInfo("No stored accounts", "Use 'ckscraper auth login -w <site>' to add one")
	}
	return nil
}
