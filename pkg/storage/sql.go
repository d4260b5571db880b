package storage

import (
	"context"
	"database/sql"

	// the postgres driver is registered so operators can pick "postgres" via configuration
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	SQLConnectionString OptionKey = "sql-connection-string-option"
	SQLDriverName       OptionKey = "sql-driver-name-option"

	defaultSQLDriverName = "postgres"

	createKeyValuesTable = `CREATE TABLE IF NOT EXISTS key_values (
    namespace varchar NOT NULL,
    key varchar NOT NULL,
    value bytea NOT NULL,
    PRIMARY KEY (namespace, key)
);`
	upsertValue = `INSERT INTO key_values (namespace, key, value) VALUES ($1, $2, $3)
ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value`
	insertValueIfAbsent = `INSERT INTO key_values (namespace, key, value) VALUES ($1, $2, $3)
ON CONFLICT (namespace, key) DO NOTHING`
	selectValue      = `SELECT value FROM key_values WHERE namespace = $1 AND key = $2`
	selectNamespace  = `SELECT key, value FROM key_values WHERE namespace = $1`
	deleteValue      = `DELETE FROM key_values WHERE namespace = $1 AND key = $2`
	deleteNamespace  = `DELETE FROM key_values WHERE namespace = $1`
	existsValueQuery = `SELECT EXISTS(SELECT 1 FROM key_values WHERE namespace = $1 AND key = $2)`
)

type SQLDB struct {
	db               *sql.DB
	connectionString string
}

func NewSQLDB(opts ...Option) (*SQLDB, error) {
	connString, driverName, err := processSQLOptions(opts...)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, connString)
	if err != nil {
		return nil, errors.Wrap(err, "opening sql db")
	}
	if _, err = db.Exec(createKeyValuesTable); err != nil {
		return nil, errors.Wrap(err, "creating key_values table")
	}
	return &SQLDB{db: db, connectionString: connString}, nil
}

func processSQLOptions(opts ...Option) (connString string, driverName string, err error) {
	connString, _, err = optionValue[string](opts, SQLConnectionString)
	if err != nil {
		return "", "", err
	}
	if connString == "" {
		return "", "", errors.New("sql connection string must not be empty")
	}
	driverName, _, err = optionValue[string](opts, SQLDriverName)
	if err != nil {
		return "", "", err
	}
	if driverName == "" {
		driverName = defaultSQLDriverName
	}
	return connString, driverName, nil
}

func (s *SQLDB) Type() Type {
	return DatabaseSQL
}

func (s *SQLDB) URI() string {
	return s.connectionString
}

func (s *SQLDB) IsOpen() bool {
	if err := s.db.Ping(); err != nil {
		logrus.WithError(err).Error("pinging db")
		return false
	}
	return true
}

func (s *SQLDB) Close() error {
	return s.db.Close()
}

func (s *SQLDB) Write(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, upsertValue, namespace, key, value)
	return errors.Wrap(err, "writing value")
}

func (s *SQLDB) WriteIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertValueIfAbsent, namespace, key, value)
	if err != nil {
		return false, errors.Wrap(err, "inserting value")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reading affected rows")
	}
	return n == 1, nil
}

func (s *SQLDB) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, selectValue, namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading value")
	}
	return value, nil
}

func (s *SQLDB) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, selectNamespace, namespace)
	if err != nil {
		return nil, errors.Wrap(err, "querying namespace")
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logrus.WithError(err).Error("closing rows")
		}
	}()

	result := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err = rows.Scan(&key, &value); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		result[key] = value
	}
	return result, errors.Wrap(rows.Err(), "iterating rows")
}

func (s *SQLDB) Exists(ctx context.Context, namespace, key string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsValueQuery, namespace, key).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "checking existence")
	}
	return exists, nil
}

func (s *SQLDB) Delete(ctx context.Context, namespace, key string) error {
	_, err := s.db.ExecContext(ctx, deleteValue, namespace, key)
	return errors.Wrap(err, "deleting value")
}

func (s *SQLDB) DeleteNamespace(ctx context.Context, namespace string) error {
	res, err := s.db.ExecContext(ctx, deleteNamespace, namespace)
	if err != nil {
		return errors.Wrap(err, "deleting namespace")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("could not delete namespace<%s>, namespace does not exist", namespace)
	}
	return nil
}
