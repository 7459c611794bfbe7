package jelstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DBType is the type of a Database connection.
type DBType string

func (dbt DBType) String() string {
	return string(dbt)
}

const (
	DatabaseNone   DBType = "none"
	DatabaseSQLite DBType = "sqlite"
	DatabaseFiles  DBType = "files"
)

const (
	DefaultDataFile   = "jelstore.db"
	DefaultCollection = "users"
)

// ParseDBType parses a string found in a connection string into a DBType.
func ParseDBType(s string) (DBType, error) {
	sLower := strings.ToLower(s)

	switch sLower {
	case DatabaseSQLite.String():
		return DatabaseSQLite, nil
	case DatabaseFiles.String():
		return DatabaseFiles, nil
	default:
		return DatabaseNone, fmt.Errorf("DB type not one of 'sqlite' or 'files': %q", s)
	}
}

// Database contains configuration settings for connecting to a persistence
// layer.
type Database struct {
	// Type is the type of database the config refers to. It also determines
	// which of its other fields are valid.
	Type DBType

	// DataDir is the path on disk to a directory to use to store data in.
	DataDir string

	// DataFile is the name of the SQLite file within DataDir. By default, it
	// is "jelstore.db". This is only applicable for SQLite.
	DataFile string

	// Collection is the namespace that records are kept under: the store
	// (table) name for SQLite and the subdirectory name for files. By default
	// it is "users".
	Collection string
}

// FillDefaults returns a new Database identical to db but with unset values
// set to their defaults.
func (db Database) FillDefaults() Database {
	newDB := db

	if newDB.Type == DatabaseSQLite && newDB.DataFile == "" {
		newDB.DataFile = DefaultDataFile
	}
	if newDB.Collection == "" {
		newDB.Collection = DefaultCollection
	}

	return newDB
}

// Validate returns an error if the Database does not have the correct fields
// set. Its type will be checked to ensure that it is a valid type to use and
// any fields necessary for connecting to that type of DB are also checked.
func (db Database) Validate() error {
	switch db.Type {
	case DatabaseSQLite:
		if db.DataDir == "" {
			return fmt.Errorf("DataDir not set to path")
		}
		if db.DataFile == "" {
			return fmt.Errorf("DataFile not set")
		}
	case DatabaseFiles:
		if db.DataDir == "" {
			return fmt.Errorf("DataDir not set to path")
		}
	case DatabaseNone:
		return fmt.Errorf("'none' DB is not valid")
	default:
		return fmt.Errorf("unknown database type: %q", db.Type.String())
	}

	if db.Collection == "" {
		return fmt.Errorf("Collection not set")
	}
	if strings.ContainsAny(db.Collection, `/\`) || db.Collection == "." || db.Collection == ".." {
		return fmt.Errorf("Collection must be a plain name: %q", db.Collection)
	}

	return nil
}

// ParseDBConnString parses a database connection string of the form
// "engine:params" into a valid Database config object.
//
// Supported database types and a sample string containing valid configurations
// for each are shown below. Placeholder values are between angle brackets,
// optional parts are between square brackets. Ordering of parameters does not
// matter.
//
// * SQLite3 DB file: "sqlite:dir=<path/to/db/dir>[,file=<name.db>][,collection=<name>]"
// * JSON file tree: "files:dir=<path/to/root>[,collection=<name>]"
//
// As a shorthand, "sqlite:<path/to/db/dir>" and "files:<path/to/root>" are
// also accepted.
func ParseDBConnString(s string) (Database, error) {
	var paramStr string
	dbParts := strings.SplitN(s, ":", 2)

	if len(dbParts) == 2 {
		paramStr = strings.TrimSpace(dbParts[1])
	}

	dbEng, err := ParseDBType(strings.TrimSpace(dbParts[0]))
	if err != nil {
		return Database{}, fmt.Errorf("unsupported DB engine: %w", err)
	}

	if paramStr == "" {
		return Database{}, fmt.Errorf("%s DB engine requires path to data directory after ':'", dbEng)
	}

	db := Database{Type: dbEng}

	if !strings.Contains(paramStr, "=") {
		db.DataDir = filepath.FromSlash(paramStr)
		return db.FillDefaults(), nil
	}

	params, err := parseParamsMap(paramStr)
	if err != nil {
		return Database{}, err
	}

	for k, v := range params {
		switch k {
		case "dir":
			db.DataDir = filepath.FromSlash(v)
		case "collection":
			db.Collection = v
		case "file":
			if dbEng != DatabaseSQLite {
				return Database{}, fmt.Errorf("unsupported param for %s DB engine: %q", dbEng, k)
			}
			db.DataFile = v
		default:
			return Database{}, fmt.Errorf("unsupported param for %s DB engine: %q", dbEng, k)
		}
	}

	if db.DataDir == "" {
		return Database{}, fmt.Errorf("%s DB engine params missing path to data directory in key 'dir'", dbEng)
	}

	return db.FillDefaults(), nil
}

func parseParamsMap(paramStr string) (map[string]string, error) {
	seqs := strings.Split(paramStr, ",")

	params := map[string]string{}
	for idx, kv := range seqs {
		parsed := strings.SplitN(kv, "=", 2)
		if len(parsed) != 2 {
			return nil, fmt.Errorf("param %d: not a kv-pair: %q", idx, kv)
		}
		k := strings.ToLower(strings.TrimSpace(parsed[0]))
		v := strings.TrimSpace(parsed[1])
		if _, ok := params[k]; ok {
			return nil, fmt.Errorf("param %d: duplicate key %q", idx, k)
		}
		params[k] = v
	}

	return params, nil
}

// LogProvider is a library or backend that writes log messages.
type LogProvider int

const (
	NoLog LogProvider = iota
	Jellog
	StdLog
	Zerolog
)

func (p LogProvider) String() string {
	switch p {
	case NoLog:
		return "none"
	case Jellog:
		return "jellog"
	case StdLog:
		return "std"
	case Zerolog:
		return "zerolog"
	default:
		return fmt.Sprintf("LogProvider(%d)", int(p))
	}
}

func ParseLogProvider(s string) (LogProvider, error) {
	switch strings.ToLower(s) {
	case NoLog.String(), "":
		return NoLog, nil
	case Jellog.String():
		return Jellog, nil
	case StdLog.String():
		return StdLog, nil
	case Zerolog.String():
		return Zerolog, nil
	default:
		return NoLog, fmt.Errorf("unknown LogProvider %q", s)
	}
}

// Log contains logging options.
type Log struct {
	// Enabled is whether logging is enabled.
	Enabled bool

	// Provider is the library that performs the logging.
	Provider LogProvider

	// File is a path to a file to write log messages to in addition to
	// stderr. If blank, only stderr is written to.
	File string
}

// Format is a serialization format of a config file.
type Format int

const (
	NoFormat Format = iota
	JSON
	YAML
)

func (f Format) String() string {
	switch f {
	case NoFormat:
		return "none"
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Extensions returns the file extensions, without the leading dot, that files
// of format f use.
func (f Format) Extensions() []string {
	switch f {
	case JSON:
		return []string{"json", "jsn"}
	case YAML:
		return []string{"yaml", "yml"}
	default:
		return nil
	}
}

// Config is the complete configuration of a jelstore program.
type Config struct {
	// Format is the format the config was loaded from. It is NoFormat if the
	// config was not loaded from a file.
	Format Format

	// DB is the configuration of the database to use. If not provided, it
	// will be set to a SQLite database in the current directory.
	DB Database

	// Listen is the address the HTTP server binds to. Defaults to
	// "localhost:8080".
	Listen string

	// Log is the logging configuration.
	Log Log
}

// FillDefaults returns a new Config identitical to cfg but with unset values
// set to their defaults.
func (cfg Config) FillDefaults() Config {
	newCFG := cfg

	if newCFG.DB.Type == DatabaseNone || newCFG.DB.Type == "" {
		newCFG.DB = Database{Type: DatabaseSQLite, DataDir: "."}
	}
	newCFG.DB = newCFG.DB.FillDefaults()
	if newCFG.Listen == "" {
		newCFG.Listen = "localhost:8080"
	}
	if newCFG.Log.Enabled && newCFG.Log.Provider == NoLog {
		newCFG.Log.Provider = Jellog
	}

	return newCFG
}

// Validate returns an error if the Config has invalid field values set. Empty
// and unset values are considered invalid; if defaults are intended to be used,
// call Validate on the return value of FillDefaults.
func (cfg Config) Validate() error {
	if err := cfg.DB.Validate(); err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if cfg.Listen == "" {
		return fmt.Errorf("listen: must not be empty")
	}
	if cfg.Log.Enabled && cfg.Log.Provider == NoLog {
		return fmt.Errorf("log: provider must be set when logging is enabled")
	}

	return nil
}
