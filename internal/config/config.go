// Package config loads jelstore configuration files and opens the repository
// a configuration names.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dekarrin/jelstore"
	"github.com/dekarrin/jelstore/dao/fsrepo"
	"github.com/dekarrin/jelstore/dao/kvrepo"
	"github.com/dekarrin/jelstore/serr"
	"gopkg.in/yaml.v3"
)

// Connector opens a repository on the database described by a
// jelstore.Database. log may be nil.
type Connector func(ctx context.Context, db jelstore.Database, log jelstore.Logger) (jelstore.Repo, error)

// ConnectorRegistry holds the Connector for each supported DBType.
//
// The zero value can be immediately used and will have the built-in
// connectors for SQLite and JSON files available. This can be disabled by
// setting DisableDefaults to true before attempting to use it.
type ConnectorRegistry struct {
	DisableDefaults bool
	reg             map[jelstore.DBType]Connector
}

func (cr *ConnectorRegistry) initDefaults() {
	if cr.reg != nil {
		return
	}

	cr.reg = map[jelstore.DBType]Connector{}
	if cr.DisableDefaults {
		return
	}

	cr.reg[jelstore.DatabaseSQLite] = func(ctx context.Context, db jelstore.Database, log jelstore.Logger) (jelstore.Repo, error) {
		if err := os.MkdirAll(db.DataDir, 0770); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}

		repo, err := kvrepo.Open(ctx, db.DataDir, db.DataFile, db.Collection)
		if err != nil {
			return nil, fmt.Errorf("initialize sqlite: %w", err)
		}
		return repo, nil
	}
	cr.reg[jelstore.DatabaseFiles] = func(ctx context.Context, db jelstore.Database, log jelstore.Logger) (jelstore.Repo, error) {
		root, err := filepath.Abs(db.DataDir)
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		base, name := filepath.Dir(root), filepath.Base(root)
		if err := os.MkdirAll(base, 0770); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}

		repo, err := fsrepo.Open(ctx, base, name, db.Collection, log)
		if err != nil {
			return nil, fmt.Errorf("initialize files: %w", err)
		}
		return repo, nil
	}
}

// Register sets the Connector used for engine. It is an error to register a
// second Connector for the same engine.
func (cr *ConnectorRegistry) Register(engine jelstore.DBType, connector Connector) error {
	if connector == nil {
		return fmt.Errorf("connector function cannot be nil")
	}
	if engine == jelstore.DatabaseNone || engine == "" {
		return fmt.Errorf("%q is not a supported DB type", engine)
	}

	cr.initDefaults()

	normEngine := jelstore.DBType(strings.ToLower(engine.String()))
	if _, ok := cr.reg[normEngine]; ok {
		return fmt.Errorf("duplicate connector registration; %q already has a registered connector", normEngine)
	}

	cr.reg[normEngine] = connector
	return nil
}

// List returns an alphabetized list of every DBType that has a registered
// connector.
func (cr *ConnectorRegistry) List() []string {
	cr.initDefaults()

	names := make([]string, 0, len(cr.reg))
	for k := range cr.reg {
		names = append(names, k.String())
	}

	sort.Strings(names)
	return names
}

// Connect opens a repository on the configured database. Its type is matched
// without regard to case. If no connector is registered for its type, a Validation error naming the supported types is
// returned.
func (cr *ConnectorRegistry) Connect(ctx context.Context, db jelstore.Database, log jelstore.Logger) (jelstore.Repo, error) {
	cr.initDefaults()

	connector, ok := cr.reg[jelstore.DBType(strings.ToLower(db.Type.String()))]
	if !ok {
		msg := fmt.Sprintf("unsupported backend %q; supported backends: %s", db.Type, strings.Join(cr.List(), ", "))
		return nil, serr.NewValidation("type", db.Type.String(), msg).With(serr.CtxOperation, "connect")
	}

	return connector(ctx, db.FillDefaults(), log)
}

type marshaledDatabase struct {
	Type       string `yaml:"type" json:"type"`
	Dir        string `yaml:"dir,omitempty" json:"dir,omitempty"`
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
}

type marshaledLog struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Provider string `yaml:"provider" json:"provider"`
	File     string `yaml:"file,omitempty" json:"file,omitempty"`
}

type marshaledConfig struct {
	DB      *marshaledDatabase `yaml:"db,omitempty" json:"db,omitempty"`
	Listen  string             `yaml:"listen,omitempty" json:"listen,omitempty"`
	Logging marshaledLog       `yaml:"logging" json:"logging"`
}

func decode(f jelstore.Format, data []byte) (jelstore.Config, error) {
	var cfg jelstore.Config
	var mc marshaledConfig
	var err error

	switch f {
	case jelstore.JSON:
		err = json.Unmarshal(data, &mc)
	case jelstore.YAML:
		err = yaml.Unmarshal(data, &mc)
	default:
		return cfg, fmt.Errorf("cannot unmarshal data in format %q", f.String())
	}

	if err != nil {
		return cfg, err
	}

	cfg.Format = f
	err = unmarshalConfig(&cfg, mc)
	return cfg, err
}

func encode(f jelstore.Format, c jelstore.Config) ([]byte, error) {
	mc := marshalConfig(c)
	var err error
	var data []byte

	switch f {
	case jelstore.JSON:
		data, err = json.MarshalIndent(mc, "", "  ")
	case jelstore.YAML:
		data, err = yaml.Marshal(mc)
	default:
		return nil, fmt.Errorf("cannot marshal data in format %q", f.String())
	}

	return data, err
}

// SupportedFormats returns a list of formats that the config module supports
// decoding. Includes all but NoFormat.
func SupportedFormats() []jelstore.Format {
	return []jelstore.Format{jelstore.JSON, jelstore.YAML}
}

// DetectFormat detects the format of a given configuration file and returns the
// Format that can decode it. Returns NoFormat if the format could not be
// detected.
func DetectFormat(file string) jelstore.Format {
	ext := strings.ToLower(filepath.Ext(file))
	ext = strings.TrimPrefix(ext, ".")

	for _, f := range SupportedFormats() {
		for _, checkedExt := range f.Extensions() {
			if ext == strings.ToLower(checkedExt) {
				return f
			}
		}
	}

	return jelstore.NoFormat
}

// Dump dumps the configuration into the bytes of a formatted file. If parsed
// by Load, the result would be an equivalent config.
//
// The config will be dumped in the same format it was loaded with, or will
// default to YAML if the cfg was created without loading from a file.
//
// This function will cause a panic if there is a problem marshaling the config
// data in its format.
func Dump(cfg jelstore.Config) []byte {
	f := cfg.Format
	if f == jelstore.NoFormat {
		f = jelstore.YAML
	}
	b, err := encode(f, cfg)
	if err != nil {
		panic(fmt.Sprintf("format encoding failed: %v", err))
	}
	return b
}

// Load loads a configuration from a JSON or YAML file. The format of the file
// is determined by examining its extension; files ending in .json or .jsn are
// parsed as JSON files, and files ending in .yaml or .yml are parsed as YAML
// files. The extension is not case-sensitive. Unset values are left unset;
// call FillDefaults on the result to apply defaults.
func Load(file string) (jelstore.Config, error) {
	f := DetectFormat(file)
	if f == jelstore.NoFormat {
		var exts []string
		for _, sf := range SupportedFormats() {
			for _, ext := range sf.Extensions() {
				exts = append(exts, "."+ext)
			}
		}
		msg := strings.Join(exts[:len(exts)-1], ", ") + ", or " + exts[len(exts)-1]
		return jelstore.Config{}, fmt.Errorf("%s: incompatible format; must be a %s file", file, msg)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return jelstore.Config{}, fmt.Errorf("%s: %w", file, err)
	}

	cfg, err := decode(f, data)
	if err != nil {
		return jelstore.Config{}, fmt.Errorf("%s: %w", file, err)
	}
	return cfg, nil
}

// unmarshalConfig completely replaces all attributes of cfg with the values
// in m. It does no validation except that which is required for parsing.
func unmarshalConfig(cfg *jelstore.Config, m marshaledConfig) error {
	var err error

	cfg.Listen = m.Listen

	if m.DB != nil {
		cfg.DB.Type, err = jelstore.ParseDBType(m.DB.Type)
		if err != nil {
			return fmt.Errorf("db: type: %w", err)
		}
		cfg.DB.DataDir = m.DB.Dir
		cfg.DB.DataFile = m.DB.File
		cfg.DB.Collection = m.DB.Collection
	} else {
		cfg.DB = jelstore.Database{}
	}

	cfg.Log.Enabled = m.Logging.Enabled
	cfg.Log.File = m.Logging.File
	cfg.Log.Provider, err = jelstore.ParseLogProvider(m.Logging.Provider)
	if err != nil {
		return fmt.Errorf("logging: provider: %w", err)
	}

	return nil
}

// marshalConfig converts cfg to the marshaledConfig that would recreate it if
// passed to unmarshalConfig.
func marshalConfig(cfg jelstore.Config) marshaledConfig {
	mc := marshaledConfig{
		Listen: cfg.Listen,
		Logging: marshaledLog{
			Enabled: cfg.Log.Enabled,
			File:    cfg.Log.File,
		},
	}

	if cfg.Log.Provider != jelstore.NoLog {
		mc.Logging.Provider = cfg.Log.Provider.String()
	}

	if cfg.DB.Type != jelstore.DatabaseNone && cfg.DB.Type != "" {
		mc.DB = &marshaledDatabase{
			Type:       cfg.DB.Type.String(),
			Dir:        cfg.DB.DataDir,
			File:       cfg.DB.DataFile,
			Collection: cfg.DB.Collection,
		}
	}

	return mc
}
