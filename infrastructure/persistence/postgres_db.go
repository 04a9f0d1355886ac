package persistence

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"socialops/infrastructure/configuration"
)

// NewPostgreSQLDB opens the credential and publication store.
func NewPostgreSQLDB(cfg configuration.Db) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func postgresDSN(cfg configuration.Db) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, port, cfg.User, cfg.Password, cfg.Name, sslMode)
}
