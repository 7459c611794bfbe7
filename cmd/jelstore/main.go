/*
Jelstore manages a collection of users kept in a SQLite database or in a tree
of JSON files, and can serve the same operations over HTTP.

Usage:

	jelstore [flags] COMMAND [ARGS]

The commands are:

	create NAME AGE    create a user
	get ID             show a user
	list               show every user
	birthday ID        add one to the age of a user
	delete ID          delete a user
	adults             show every user aged 18 or older
	search PATTERN     show every user whose name contains PATTERN
	page N SIZE        show page N of the users, SIZE users per page
	backends           list the supported storage backends
	serve [ADDR]       serve the user API over HTTP until interrupted

Results are printed to stdout as JSON.

The flags are:

	-c, --config PATH
		Load configuration from the given JSON or YAML file. Values given by
		other flags override the ones in the file.

	-d, --db CONNSTR
		Use the given database instead of the configured one. CONNSTR is of
		the form "sqlite:DIR" or "files:DIR", or the long form
		"sqlite:dir=DIR,file=NAME,collection=NAME". Defaults to a SQLite
		database in the current directory.

	-l, --log FILE
		Enable logging and also write log messages to FILE.

	-p, --log-provider NAME
		Enable logging with the given provider: one of "jellog", "std", or
		"zerolog".

Exit status is 0 on success, 1 on a failed operation, 2 on invalid arguments,
and 3 if the storage backend could not be opened.
*/
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/internal/config"
	"github.com/dekarrin/jelstore/internal/logging"
	"github.com/dekarrin/jelstore/server"
	"github.com/dekarrin/jelstore/service"
	"github.com/spf13/pflag"
)

const (
	exitSuccess     = 0
	exitError       = 1
	exitBadArgs     = 2
	exitStorageInit = 3
)

// errBadArgs marks errors caused by the invocation itself.
var errBadArgs = errors.New("bad arguments")

func main() {
	os.Exit(runMain())
}

// runMain runs jelstore with the process arguments and returns the exit
// status. Deferred cleanup is finished by the time it returns.
func runMain() (exitCode int) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if panicErr := recover(); panicErr != nil {
			fmt.Fprintf(os.Stderr, "fatal panic: %v\n", panicErr)
			exitCode = exitError
		}
	}()

	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

// run executes one jelstore invocation and returns its exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("jelstore", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flagConf := flags.StringP("config", "c", "", "Path to configuration file")
	flagDB := flags.StringP("db", "d", "", "Database connection string")
	flagLog := flags.StringP("log", "l", "", "Write log messages to this file")
	flagProvider := flags.StringP("log-provider", "p", "", "Logging provider to use")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitSuccess
		}
		return exitBadArgs
	}

	cfg, err := loadConfig(*flagConf, *flagDB, *flagLog, *flagProvider, flags.Changed("log-provider"))
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %s\n", err.Error())
		return exitBadArgs
	}

	cmdArgs := flags.Args()
	if len(cmdArgs) < 1 {
		fmt.Fprintf(stderr, "ERROR: no command given\n")
		return exitBadArgs
	}

	var log jelstore.Logger = logging.NoOpLogger{}
	if cfg.Log.Enabled {
		log, err = logging.New(cfg.Log.Provider, cfg.Log.File)
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: create logger: %s\n", err.Error())
			return exitError
		}
	}

	connectors := &config.ConnectorRegistry{}

	cmd, cmdArgs := cmdArgs[0], cmdArgs[1:]
	if cmd == "backends" {
		return writeJSON(stdout, stderr, connectors.List())
	}

	log.Debugf("Opening %s database in %s...", cfg.DB.Type, cfg.DB.DataDir)
	repo, err := connectors.Connect(ctx, cfg.DB, log)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: open storage: %s\n", err.Error())
		return exitStorageInit
	}
	if closer, ok := repo.(io.Closer); ok {
		defer closer.Close()
	}

	svc := service.New(repo)

	if cmd == "serve" {
		addr := cfg.Listen
		if len(cmdArgs) > 0 {
			addr = cmdArgs[0]
		}
		if err := serve(ctx, server.New(svc, log), addr, log); err != nil {
			fmt.Fprintf(stderr, "ERROR: %s\n", err.Error())
			return exitError
		}
		return exitSuccess
	}

	result, err := runCommand(ctx, svc, cmd, cmdArgs)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %s\n", err.Error())
		if errors.Is(err, errBadArgs) || errors.Is(err, jelstore.ErrValidation) {
			return exitBadArgs
		}
		return exitError
	}

	return writeJSON(stdout, stderr, result)
}

// loadConfig builds the configuration from the config file, if any, with the
// values given by flags overriding it.
func loadConfig(file, connStr, logFile, provider string, providerSet bool) (jelstore.Config, error) {
	var cfg jelstore.Config
	var err error

	if file != "" {
		cfg, err = config.Load(file)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}

	if connStr != "" {
		cfg.DB, err = jelstore.ParseDBConnString(connStr)
		if err != nil {
			return cfg, fmt.Errorf("--db: %w", err)
		}
	}

	if logFile != "" {
		cfg.Log.Enabled = true
		cfg.Log.File = logFile
	}
	if providerSet {
		cfg.Log.Enabled = true
		cfg.Log.Provider, err = jelstore.ParseLogProvider(provider)
		if err != nil {
			return cfg, fmt.Errorf("--log-provider: %w", err)
		}
	}

	cfg = cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func runCommand(ctx context.Context, svc service.UserService, cmd string, args []string) (interface{}, error) {
	switch cmd {
	case "create":
		if err := wantArgs(cmd, args, 2); err != nil {
			return nil, err
		}
		age, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: AGE must be an integer: %q", errBadArgs, args[1])
		}
		return svc.CreateUser(ctx, args[0], age)
	case "get", "birthday", "delete":
		if err := wantArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: ID must be an integer: %q", errBadArgs, args[0])
		}
		switch cmd {
		case "get":
			return svc.GetUser(ctx, id)
		case "birthday":
			return svc.IncrementAge(ctx, id)
		default:
			if err := svc.DeleteUser(ctx, id); err != nil {
				return nil, err
			}
			return map[string]int64{"deleted": id}, nil
		}
	case "list":
		if err := wantArgs(cmd, args, 0); err != nil {
			return nil, err
		}
		return svc.ListUsers(ctx)
	case "adults":
		if err := wantArgs(cmd, args, 0); err != nil {
			return nil, err
		}
		return svc.FindAdults(ctx)
	case "search":
		if err := wantArgs(cmd, args, 1); err != nil {
			return nil, err
		}
		return svc.SearchUsers(ctx, args[0])
	case "page":
		if err := wantArgs(cmd, args, 2); err != nil {
			return nil, err
		}
		page, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("%w: N must be an integer: %q", errBadArgs, args[0])
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("%w: SIZE must be an integer: %q", errBadArgs, args[1])
		}
		return svc.GetUsersPaginated(ctx, page, size)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errBadArgs, cmd)
	}
}

func wantArgs(cmd string, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d argument(s) but got %d", errBadArgs, cmd, n, len(args))
	}
	return nil
}

func writeJSON(stdout, stderr io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "ERROR: write output: %s\n", err.Error())
		return exitError
	}
	return exitSuccess
}

// serve runs srv on addr until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *server.Server, addr string, log jelstore.Logger) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ServeForever(addr)
	}()

	log.Info("jelstore server started; Ctrl-C (SIGINT) to stop")

	select {
	case err := <-serveErr:
		return fmt.Errorf("server encountered a problem: %w", err)
	case <-ctx.Done():
	}

	// ctrl-C likes to write "^C" to the console, so start on a fresh line
	log.InfoBreak()
	log.Info("Interrupt received; cleaning up server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(err.Error())
		return nil
	}

	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("Server shutdown complete")
	return nil
}
