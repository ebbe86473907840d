package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bryan-buckman/feverd/internal/config"
	"github.com/bryan-buckman/feverd/internal/database"
	"github.com/bryan-buckman/feverd/internal/favicon"
	"github.com/bryan-buckman/feverd/internal/fever"
	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/bryan-buckman/feverd/internal/opml"
	"github.com/bryan-buckman/feverd/internal/rss"
	"github.com/bryan-buckman/feverd/internal/server"
	"github.com/urfave/cli"
	log "gopkg.in/inconshreveable/log15.v2"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "feverd"
	app.Usage = "feed aggregator with a Fever sync API"
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Value: "feverd.conf", Usage: "path to config file"},
	}

	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "run the server",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "address, a", Usage: "address to listen on"},
				cli.StringFlag{Name: "port, p", Usage: "port to listen on"},
			},
			Action: Serve,
		},
		{
			Name:      "user-add",
			Usage:     "create a user",
			ArgsUsage: "NAME",
			Action:    UserAdd,
		},
		{
			Name:      "set-api-password",
			Usage:     "set the password Fever clients use for a user",
			ArgsUsage: "NAME PASSWORD",
			Action:    SetAPIPassword,
		},
		{
			Name:      "import-opml",
			Usage:     "import subscriptions from an OPML file",
			ArgsUsage: "FILE",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "user, u", Usage: "user to import for"},
			},
			Action: ImportOPML,
		},
		{
			Name:  "export-opml",
			Usage: "write subscriptions as OPML to stdout",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "user, u", Usage: "user to export"},
			},
			Action: ExportOPML,
		},
		{
			Name:   "refresh",
			Usage:  "fetch all feeds once",
			Action: Refresh,
		},
		{
			Name:   "cleanup",
			Usage:  "delete read items that are not saved",
			Action: Cleanup,
		},
		{
			Name:      "set-interval",
			Usage:     "set the polling interval in minutes",
			ArgsUsage: "MINUTES",
			Action:    SetInterval,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs.
type env struct {
	conf   config.Config
	logger log.Logger
	db     database.Store
}

func (e *env) Close() {
	e.db.Close()
}

func setup(c *cli.Context) (*env, error) {
	conf, err := config.Load(c.GlobalString("config"), !c.GlobalIsSet("config"))
	if err != nil {
		return nil, cli.NewExitError(err.Error(), 1)
	}

	logger, err := newLogger(conf.LogLevel)
	if err != nil {
		return nil, cli.NewExitError(err.Error(), 1)
	}

	db, err := database.Open(conf.Database.Driver, conf.Database.DSN())
	if err != nil {
		return nil, cli.NewExitError(fmt.Sprintf("open database: %v", err), 1)
	}
	logger.New("module", "database").Debug("database opened", "type", db.DatabaseType())

	return &env{conf: conf, logger: logger, db: db}, nil
}

func newLogger(level string) (log.Logger, error) {
	logger := log.New()
	if level == "none" {
		logger.SetHandler(log.DiscardHandler())
		return logger, nil
	}

	lvl, err := log.LvlFromString(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level: %w", err)
	}
	logger.SetHandler(log.LvlFilterHandler(lvl, log.StdoutHandler))

	return logger, nil
}

func newFetcher(e *env) *rss.Fetcher {
	fetcher := rss.NewFetcher(e.db, e.logger.New("module", "fetcher"))
	if e.conf.Fever.FaviconDir != "" {
		icons := favicon.NewStore(e.conf.Fever.FaviconDir, e.conf.Fever.Salt)
		fetcher.WithFavicons(rss.NewFaviconFetcher(e.db, icons, e.logger.New("module", "favicon")))
	}
	return fetcher
}

func Serve(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if c.IsSet("address") {
		e.conf.Server.Address = c.String("address")
	}
	if c.IsSet("port") {
		e.conf.Server.Port = c.String("port")
	}

	opts := server.Options{FeverEnabled: e.conf.Fever.Enabled}
	if e.conf.Fever.FaviconDir != "" {
		opts.Favicons = favicon.NewStore(e.conf.Fever.FaviconDir, e.conf.Fever.Salt)
	}
	if e.conf.Poller.Enabled {
		opts.Poller = rss.NewPoller(e.db, newFetcher(e), e.logger.New("module", "poller"))
	}
	s := server.New(e.db, opts, e.logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Run(ctx, e.conf.ListenAddress()); err != nil {
		return cli.NewExitError(fmt.Sprintf("could not start web server: %v", err), 1)
	}
	return nil
}

func UserAdd(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return cli.NewExitError("", 1)
	}
	name := c.Args().First()

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.db.CreateUser(name)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("create user: %v", err), 1)
	}
	fmt.Println("User:", name)
	fmt.Println("ID:", id)
	return nil
}

func SetAPIPassword(c *cli.Context) error {
	if c.NArg() != 2 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return cli.NewExitError("", 1)
	}
	name, password := c.Args().Get(0), c.Args().Get(1)

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := lookupUser(e, name)
	if err != nil {
		return err
	}

	hash, err := fever.HashAPIKey(fever.APIKey(user.Name, password))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	if err := e.db.SetAPIPasswordHash(user.ID, hash); err != nil {
		return cli.NewExitError(fmt.Sprintf("set api password: %v", err), 1)
	}
	fmt.Println("API password set for", user.Name)
	return nil
}

func ImportOPML(c *cli.Context) error {
	if c.NArg() != 1 || c.String("user") == "" {
		cli.ShowCommandHelp(c, c.Command.Name)
		return cli.NewExitError("", 1)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := lookupUser(e, c.String("user"))
	if err != nil {
		return err
	}

	file, err := os.Open(c.Args().First())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to parse OPML: %v", err), 1)
	}

	imported, err := opml.Import(e.db, user.ID, entries)
	if err != nil {
		e.logger.Warn("some feeds were not imported", "error", err)
	}
	fmt.Printf("Imported %d new feeds of %d\n", imported, len(entries))
	return nil
}

func ExportOPML(c *cli.Context) error {
	if c.String("user") == "" {
		cli.ShowCommandHelp(c, c.Command.Name)
		return cli.NewExitError("", 1)
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := lookupUser(e, c.String("user"))
	if err != nil {
		return err
	}
	folders, err := e.db.GetFolders(user.ID)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	feeds, err := e.db.GetFeeds(user.ID)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	data, err := opml.Export("feverd feeds", folders, feeds)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to export: %v", err), 1)
	}
	os.Stdout.Write(data)
	return nil
}

func Refresh(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	results, err := newFetcher(e).FetchAll(ctx)
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("fetch error: %v", err), 1)
	}
	total := 0
	for _, n := range results {
		total += n
	}
	fmt.Printf("Fetched %d new items from %d feeds\n", total, len(results))
	return nil
}

func Cleanup(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	deleted, err := e.db.CleanupReadItems()
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("cleanup failed: %v", err), 1)
	}
	fmt.Printf("Deleted %d read items\n", deleted)
	return nil
}

func SetInterval(c *cli.Context) error {
	if c.NArg() != 1 {
		cli.ShowCommandHelp(c, c.Command.Name)
		return cli.NewExitError("", 1)
	}
	minutes, err := strconv.Atoi(c.Args().First())
	if err != nil {
		return cli.NewExitError(fmt.Sprintf("bad interval: %v", err), 1)
	}
	if minutes < rss.MinPollingIntervalMinutes {
		minutes = rss.MinPollingIntervalMinutes
	}

	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.db.SetSetting(model.SettingPollingInterval, strconv.Itoa(minutes)); err != nil {
		return cli.NewExitError(fmt.Sprintf("failed to save: %v", err), 1)
	}
	fmt.Printf("Polling interval set to %d minutes\n", minutes)
	return nil
}

func lookupUser(e *env, name string) (*model.User, error) {
	user, err := e.db.GetUserByName(name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, cli.NewExitError(fmt.Sprintf("no such user: %s", name), 1)
	}
	if err != nil {
		return nil, cli.NewExitError(err.Error(), 1)
	}
	return user, nil
}
