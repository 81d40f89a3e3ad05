package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nakshjewels/cart-service/internal/domain"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLCatalog serves products from a sqlite or postgres products table.
type SQLCatalog struct {
	db     *sql.DB
	driver string
}

func NewSQLCatalog(driver, dsn string) (*SQLCatalog, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newSQLCatalog(db, driver)
}

// newSQLCatalog takes ownership of db and closes it if it cannot be reached.
func newSQLCatalog(db *sql.DB, driver string) (*SQLCatalog, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		// every new connection to ":memory:" is a fresh database
		db.SetMaxOpenConns(1)
	}

	return &SQLCatalog{db: db, driver: driver}, nil
}

// RunMigrations applies <migrationsPath>/<driver> to the database.
func (c *SQLCatalog) RunMigrations(migrationsPath string) error {
	var (
		driver database.Driver
		err    error
	)
	switch c.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(c.db, &postgres.Config{MigrationsTable: "catalog_schema_migrations"})
	default:
		driver, err = sqlite.WithInstance(c.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s/%s", strings.TrimSuffix(migrationsPath, "/"), c.driver),
		c.driver,
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (c *SQLCatalog) Resolve(ctx context.Context, productID string) (*domain.Product, error) {
	query := `
		SELECT id, name, description, price, image_url, category, stock, is_available
		FROM products
		WHERE id = $1
	`

	p := &domain.Product{}
	err := c.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.ImageURL,
		&p.Category,
		&p.Stock,
		&p.IsAvailable,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	return p, nil
}

// List filters category and text in SQL; price bounds are applied on decimals
// afterwards since sqlite stores prices as text.
func (c *SQLCatalog) List(ctx context.Context, filter Filter) ([]*domain.Product, error) {
	query := `
		SELECT id, name, description, price, image_url, category, stock, is_available
		FROM products
		WHERE ($1 = '' OR LOWER(category) = $1)
		  AND ($2 = '' OR LOWER(name) LIKE $2 OR LOWER(description) LIKE $2)
		ORDER BY created_at DESC, id
	`

	search := ""
	if filter.Search != "" {
		search = "%" + strings.ToLower(filter.Search) + "%"
	}

	rows, err := c.db.QueryContext(ctx, query, strings.ToLower(filter.Category), search)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p := &domain.Product{}
		err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Description,
			&p.Price,
			&p.ImageURL,
			&p.Category,
			&p.Stock,
			&p.IsAvailable,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if filter.Match(p) {
			products = append(products, p)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (c *SQLCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLCatalog) Close() error {
	return c.db.Close()
}
