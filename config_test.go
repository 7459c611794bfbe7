package jelstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_ParseDBConnString(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expect    Database
		expectErr bool
	}{
		{
			name:   "sqlite shorthand",
			input:  "sqlite:data",
			expect: Database{Type: DatabaseSQLite, DataDir: "data", DataFile: DefaultDataFile, Collection: DefaultCollection},
		},
		{
			name:   "sqlite with params",
			input:  "sqlite:dir=data/db,file=test.db,collection=people",
			expect: Database{Type: DatabaseSQLite, DataDir: filepath.FromSlash("data/db"), DataFile: "test.db", Collection: "people"},
		},
		{
			name:   "files shorthand",
			input:  "files:/var/lib/jelstore",
			expect: Database{Type: DatabaseFiles, DataDir: filepath.FromSlash("/var/lib/jelstore"), Collection: DefaultCollection},
		},
		{
			name:   "engine is case-insensitive",
			input:  "FILES:dir=x,collection=trolls",
			expect: Database{Type: DatabaseFiles, DataDir: "x", Collection: "trolls"},
		},
		{
			name:      "unknown engine",
			input:     "owdb:dir=x",
			expectErr: true,
		},
		{
			name:      "missing params",
			input:     "sqlite",
			expectErr: true,
		},
		{
			name:      "file param not allowed for files engine",
			input:     "files:dir=x,file=y",
			expectErr: true,
		},
		{
			name:      "params without dir",
			input:     "sqlite:file=y.db",
			expectErr: true,
		},
		{
			name:      "malformed param",
			input:     "sqlite:dir=x,nope",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			actual, err := ParseDBConnString(tc.input)
			if tc.expectErr {
				assert.Error(err)
				return
			}

			assert.NoError(err)
			assert.Equal(tc.expect, actual)
		})
	}
}

func Test_Config_FillDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg := Config{}.FillDefaults()

	assert.Equal(DatabaseSQLite, cfg.DB.Type)
	assert.Equal(DefaultDataFile, cfg.DB.DataFile)
	assert.Equal(DefaultCollection, cfg.DB.Collection)
	assert.Equal("localhost:8080", cfg.Listen)
	assert.NoError(cfg.Validate())
}

func Test_Database_Validate(t *testing.T) {
	testCases := []struct {
		name      string
		db        Database
		expectErr bool
	}{
		{name: "valid sqlite", db: Database{Type: DatabaseSQLite, DataDir: ".", DataFile: "a.db", Collection: "users"}},
		{name: "valid files", db: Database{Type: DatabaseFiles, DataDir: ".", Collection: "users"}},
		{name: "none", db: Database{Type: DatabaseNone}, expectErr: true},
		{name: "no dir", db: Database{Type: DatabaseFiles, Collection: "users"}, expectErr: true},
		{name: "collection with slash", db: Database{Type: DatabaseFiles, DataDir: ".", Collection: "a/b"}, expectErr: true},
		{name: "collection dotdot", db: Database{Type: DatabaseFiles, DataDir: ".", Collection: ".."}, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			err := tc.db.Validate()
			if tc.expectErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
			}
		})
	}
}
