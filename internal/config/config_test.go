package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/controls/internal/checks"
	"github.com/roach88/controls/internal/engine"
	"github.com/roach88/controls/internal/model"
	"github.com/roach88/controls/internal/store"
)

const validConfig = `database:
  driver: sqlite
  dsn: ${CONTROLS_TEST_DB}
partition:
  skjema: RA-0174
  aar: 2024
tables:
  outcomes: kontrollutfall
stale_policy: report
checks:
  - id: omsetning_mangler
    kind: missing
    source: skjema_data
    column: omsetning
  - id: omsetning_grenser
    kind: range
    source: skjema_data
    column: omsetning
    min: 0
    max: 1000000000
    entity_column: orgnr
metrics:
  pushgateway: http://localhost:9091
`

func TestParse_Valid(t *testing.T) {
	t.Setenv("CONTROLS_TEST_DB", "/tmp/controls.db")

	cfg, err := Parse("controls.yaml", []byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, store.DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/controls.db", cfg.Database.DSN)
	assert.Equal(t, []string{"skjema", "aar"}, cfg.Partition.Columns(), "document order is kept")
	assert.Equal(t, []string{"RA-0174", "2024"}, cfg.Partition.Values())
	assert.Equal(t, model.Layout{RegistryTable: model.DefaultRegistryTable, OutcomesTable: "kontrollutfall"}, cfg.Tables)
	assert.Equal(t, string(engine.StaleReport), cfg.StalePolicy)
	assert.Equal(t, "controls", cfg.Metrics.Job)
	assert.Equal(t, []string{"omsetning_mangler", "omsetning_grenser"}, cfg.CheckIDs())

	rng := cfg.Checks[1]
	assert.Equal(t, checks.KindRange, rng.Kind)
	require.NotNil(t, rng.Max)
	assert.Equal(t, 1e9, *rng.Max)
	assert.Equal(t, "orgnr", rng.EntityColumn)
	assert.Equal(t, checks.DefaultDeliveryColumn, rng.DeliveryColumn)

	assert.Equal(t, map[string]string{"skjema": "RA-0174", "aar": "2024"}, cfg.PushGrouping())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse("min.yaml", []byte("database:\n  dsn: controls.db\npartition:\n  aar: \"2024\"\n"))
	require.NoError(t, err)

	assert.Equal(t, store.DefaultDriver, cfg.Database.Driver)
	assert.Equal(t, model.DefaultLayout(), cfg.Tables)
	assert.Equal(t, string(engine.DefaultStalePolicy), cfg.StalePolicy)
	assert.Empty(t, cfg.Checks)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "missing dsn",
			doc:  "database:\n  driver: sqlite3\npartition:\n  aar: \"2024\"\n",
			want: "database.dsn",
		},
		{
			name: "unknown driver",
			doc:  "database:\n  driver: oracle\n  dsn: x\npartition:\n  aar: \"2024\"\n",
			want: "database.driver",
		},
		{
			name: "unknown stale policy",
			doc:  "database:\n  dsn: x\npartition:\n  aar: \"2024\"\nstale_policy: purge\n",
			want: "stale_policy",
		},
		{
			name: "unknown check kind",
			doc:  "database:\n  dsn: x\npartition:\n  aar: \"2024\"\nchecks:\n  - id: a\n    kind: regex\n    source: s\n    column: c\n",
			want: "kind",
		},
		{
			name: "unknown field",
			doc:  "database:\n  dsn: x\npartition:\n  aar: \"2024\"\nbogus: true\n",
			want: "bogus",
		},
		{
			name: "bad table name",
			doc:  "database:\n  dsn: x\npartition:\n  aar: \"2024\"\ntables:\n  registry: \"drop table\"\n",
			want: "tables.registry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.doc))
			require.Error(t, err)

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			assert.NotEmpty(t, errs)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse("broken.yaml", []byte("database: [\n"))
	require.Error(t, err)
}

func TestValidate_Rules(t *testing.T) {
	lo, hi := 10.0, 1.0
	cfg := &Config{
		Database:    Database{Driver: "sqlite3", DSN: "x"},
		Partition:   model.MustPartition("outcome", "1"),
		Tables:      model.DefaultLayout(),
		StalePolicy: "ignore",
		Checks: []checks.Spec{
			{ID: "a", Kind: checks.KindMissing, Source: "s", Column: "c"},
			{ID: "a", Kind: checks.KindMissing, Source: "s", Column: "c"},
			{ID: "b", Kind: checks.KindRange, Source: "s", Column: "c", Min: &lo, Max: &hi},
		},
	}

	errs := cfg.Validate()
	msg := errs.Error()
	assert.Contains(t, msg, "partition.outcome: collides with an outcome column")
	assert.Contains(t, msg, `checks[1].id: duplicate id "a" (also checks[0])`)
	assert.Contains(t, msg, "checks[2]: check \"b\": min 10 is greater than max 1")
	assert.Len(t, errs, 3)
}

func TestValidate_EmptyPartition(t *testing.T) {
	cfg := &Config{Database: Database{Driver: "sqlite3", DSN: "x"}, Tables: model.DefaultLayout(), StalePolicy: "ignore"}
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Equal(t, "partition", errs[0].Field)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  dsn: controls.db\npartition:\n  aar: \"2024\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "aar=2024", cfg.Partition.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestValidationError_Format(t *testing.T) {
	assert.Equal(t, "line 3: partition: bad", ValidationError{Field: "partition", Message: "bad", Line: 3}.Error())
	assert.Equal(t, "partition: bad", ValidationError{Field: "partition", Message: "bad"}.Error())
}
