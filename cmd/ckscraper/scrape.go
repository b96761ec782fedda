package main

import (
	"context"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ckscraper/pkg/auth"
	"ckscraper/pkg/config"
	errs "ckscraper/pkg/errors"
	"ckscraper/pkg/files"
	"ckscraper/pkg/logger"
	"ckscraper/pkg/ratelimit"
	"ckscraper/pkg/scraper"
	"ckscraper/pkg/site"
	"ckscraper/pkg/ui"
)

const (
	actionDownloadFiles = "download-files"
	actionListFiles     = "list-files"
	actionListCollabs   = "list-collabs"
	actionListLinks     = "list-links"

	// dateLayout is how --from-date and --to-date are written
	dateLayout = "2006/01/02 15:04:05"
)

var actions = []string{actionDownloadFiles, actionListFiles, actionListCollabs, actionListLinks}

// runFlags are the flags of a scrape run
type runFlags struct {
	webSite     string
	userID      string
	favorites   bool
	credentials string
	account     string
	service     string
	action      string
	fileType    string
	fromDate    string
	toDate      string
	fromPostID  string
	toPostID    string
	output      string
	maxRetries  int
	quiet       bool
	overwrite   bool
	showSize    bool
	reverse     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.webSite, "web-site", "w", "", "site host, e.g. kemono.su or coomer.su (required)")
	fs.StringVarP(&f.userID, "user-id", "u", "", "creator id on the service")
	fs.BoolVarP(&f.favorites, "favorites", "f", false, "use the favorite posts of the logged-in account")
	fs.StringVarP(&f.credentials, "credentials", "c", "", "site credentials as username:password")
	fs.StringVar(&f.account, "account", "", "use a stored account for the site")
	fs.StringVarP(&f.service, "service", "s", "onlyfans", "service the creator posts on")
	fs.StringVarP(&f.action, "action", "a", "", "one of "+strings.Join(actions, ", ")+" (required)")
	fs.StringVar(&f.fileType, "file-type", "", "only files of this type: "+typeNames())
	fs.StringVar(&f.fromDate, "from-date", "", "start at posts added on or before this date, 'YYYY/MM/DD hh:mm:ss'")
	fs.StringVar(&f.toDate, "to-date", "", "stop at posts added before this date, 'YYYY/MM/DD hh:mm:ss'")
	fs.StringVar(&f.fromPostID, "from-post-id", "", "start at this post")
	fs.StringVar(&f.toPostID, "to-post-id", "", "stop at this post")
	fs.StringVarP(&f.output, "output", "o", "", "download directory (default: current directory)")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "attempts per request and per file (default 5)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, `do not display informative messages like "already downloaded"`)
	fs.BoolVar(&f.overwrite, "overwrite-file", false, "overwrite existing files during download")
	fs.BoolVar(&f.showSize, "show-file-size", false, "show file sizes with list-files (one request per file)")
	fs.BoolVar(&f.reverse, "reverse-order", false, "list or download from the oldest post")
}

func typeNames() string {
	names := make([]string, 0, len(files.Types()))
	for _, t := range files.Types() {
		names = append(names, t.String())
	}
	return strings.Join(names, ", ")
}

func usageError(format string, args ...interface{}) error {
	return errs.New(errs.ErrorTypeConfig, 0, format, args...)
}

// request checks the selection flags and turns them into a scraper request
func (f *runFlags) request() (scraper.Request, error) {
	req := scraper.Request{
		UserID:     strings.TrimSpace(f.userID),
		Favorites:  f.favorites,
		FromPostID: strings.TrimSpace(f.fromPostID),
		ToPostID:   strings.TrimSpace(f.toPostID),
		Reverse:    f.reverse,
	}

	switch {
	case req.UserID != "" && req.Favorites:
		return req, usageError("--user-id and --favorites cannot be used together")
	case req.UserID == "" && !req.Favorites:
		return req, usageError("one of --user-id or --favorites is required")
	}

	switch {
	case f.action == "":
		return req, usageError("--action is required (one of %s)", strings.Join(actions, ", "))
	case !slices.Contains(actions, f.action):
		return req, usageError("invalid --action %q (want one of %s)", f.action, strings.Join(actions, ", "))
	}

	if f.fileType != "" {
		t, err := files.ParseFileType(f.fileType)
		if err != nil {
			return req, errs.Wrap(errs.ErrorTypeConfig, err, "invalid --file-type")
		}
		req.FileType = &t
	}

	var err error
	if req.FromDate, err = parseDate("from-date", f.fromDate); err != nil {
		return req, err
	}
	if req.ToDate, err = parseDate("to-date", f.toDate); err != nil {
		return req, err
	}
	return req, nil
}

func parseDate(name, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, 0, "invalid --%s %q, expected 'YYYY/MM/DD hh:mm:ss'", name, value)
	}
	return &t, nil
}

// loadConfig merges the flags the user set into the file and environment
// configuration
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = value
		}
	}
	set("web-site", a.run.webSite)
	set("service", a.run.service)
	set("output", a.run.output)
	set("max-retries", a.run.maxRetries)
	set("overwrite-file", a.run.overwrite)
	set("show-file-size", a.run.showSize)
	set("quiet", a.run.quiet)
	set("log-level", a.logLevel)

	cfg, err := config.Load(a.configFile, flags)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, err, "loading configuration")
	}
	if cfg.Site.Host == "" {
		return nil, usageError("--web-site is required")
	}

	// logs would interleave with progress lines on the terminal
	if !a.verbose && !cmd.Flags().Changed("log-level") && cfg.Logging.File == "" &&
		os.Getenv(config.EnvPrefix+"LOG_LEVEL") == "" {
		cfg.Logging.Level = "error"
	}
	return cfg, nil
}

func (a *app) runScrape(cmd *cobra.Command) error {
	ctx := cmd.Context()

	req, err := a.run.request()
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return errs.Wrap(errs.ErrorTypeConfig, err, "initializing logger")
	}
	log := logger.GetLogger()
	ui.SetQuiet(cfg.UI.Quiet)
	ui.SetColor(a.colorTerm && !a.noColor && !cfg.UI.NoColor)

	log.InfoWithFields("ckscraper starting", map[string]interface{}{
		"version": version,
		"host":    cfg.Site.Host,
		"service": cfg.Site.Service,
		"action":  a.run.action,
	})

	client := site.NewClient(cfg.Site,
		site.WithLimiter(ratelimit.PerMinute(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.BurstSize)),
		site.WithLogger(log),
	)

	appVersion, err := client.AppVersion(ctx)
	if err != nil {
		return err
	}
	log.WithField("app_version", appVersion).Debug("Site is available")

	if err := a.login(ctx, client, req.Favorites); err != nil {
		return err
	}

	s := scraper.New(cfg, client, a.out,
		scraper.WithProgress(ui.NewFileProgress(a.errOut, a.interactive)),
		scraper.WithLogger(log),
	)

	switch a.run.action {
	case actionListFiles:
		return s.ListFiles(ctx, req)
	case actionListCollabs:
		return s.ListCollabs(ctx, req)
	case actionListLinks:
		return s.ListLinks(ctx, req)
	default:
		start := time.Now()
		summary, err := s.DownloadFiles(ctx, req)
		if !ui.IsQuietMode() && ctx.Err() == nil {
			ui.PrintDownloadSummary(a.out, summary, time.Since(start))
		}
		return err
	}
}

// login authenticates when credentials are available. Favorites need an
// account, so they fall back to stored credentials and then to a prompt.
func (a *app) login(ctx context.Context, client *site.Client, favorites bool) error {
	username, password, err := a.credentials(client.Host(), favorites)
	if err != nil {
		return err
	}
	if username == "" {
		return nil
	}
	_, err = client.Authenticate(ctx, username, password)
	return err
}

func (a *app) credentials(host string, favorites bool) (string, string, error) {
	if a.run.credentials != "" {
		username, password, err := auth.ParseCredentials(a.run.credentials)
		if err != nil {
			return "", "", errs.Wrap(errs.ErrorTypeConfig, err, "invalid --credentials")
		}
		return username, password, nil
	}
	if !favorites && a.run.account == "" {
		return "", "", nil
	}

	manager, err := a.newManager()
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Credential store unavailable, using environment only")
		manager = auth.NewManagerWithStores(auth.NewEnvironmentStore())
	}

	var account *auth.Account
	if a.run.account != "" {
		account, err = manager.Retrieve(host, a.run.account)
	} else {
		account, err = manager.RetrieveDefault(host)
	}
	switch {
	case err == nil:
		logger.WithField("account", account.Username).Info("Using stored credentials")
		return account.Username, account.Password, nil
	case a.run.account != "":
		return "", "", errs.Wrap(errs.ErrorTypeAuth, err, "stored account %s", a.run.account)
	}

	username, password, err := auth.Prompt(a.in, a.errOut, a.readPassword)
	if err != nil {
		return "", "", errs.Wrap(errs.ErrorTypeAuth, err, "reading credentials")
	}
	return username, password, nil
}
