package docstore

import (
	"fmt"
	"time"

	"example.com/conduit/internal/logger"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var logg = logger.New()

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// CassandraConfig holds the connection settings for the Cassandra backend.
type CassandraConfig struct {
	Host           string
	Keyspace       string
	Username       string
	Password       string
	Timeout        time.Duration
	DC             string
	MigrationsPath string
	// Indexed lists, per bucket, the fields that Query may filter on.
	Indexed map[string][]string
}

// --- Store Implementation ---

// CassandraStore keeps documents one row per top-level field.
type CassandraStore struct {
	Session SessionInterface
	indexed map[string]map[string]bool
}

// NewCassandra ensures the keyspace, applies migrations and opens a session.
func NewCassandra(cfg CassandraConfig) (*CassandraStore, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.Host)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	if cfg.DC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.DC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("docstore", "Connected to Cassandra keyspace (host anonymized)")
	return NewCassandraWithSession(sess, cfg.Indexed), nil
}

// NewCassandraWithSession wraps an existing session.
func NewCassandraWithSession(sess SessionInterface, indexed map[string][]string) *CassandraStore {
	idx := make(map[string]map[string]bool, len(indexed))
	for bucket, fields := range indexed {
		idx[bucket] = make(map[string]bool, len(fields))
		for _, f := range fields {
			idx[bucket][f] = true
		}
	}
	return &CassandraStore{Session: sess, indexed: idx}
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg CassandraConfig) error {
	cluster := gocql.NewCluster(cfg.Host)
	cluster.Keyspace = "system"
	cluster.Timeout = cfg.Timeout
	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.Keyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("docstore", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg CassandraConfig) error {
	sourceURL := fmt.Sprintf("file://%s", cfg.MigrationsPath)
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.Host, cfg.Keyspace,
	)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("docstore", "No new migrations to apply")
	} else {
		logg.Info("docstore", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes Cassandra session.
func (s *CassandraStore) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("docstore", "Cassandra session closed")
	}
}

func (s *CassandraStore) isIndexed(bucket, field string) bool {
	return s.indexed[bucket][field]
}
