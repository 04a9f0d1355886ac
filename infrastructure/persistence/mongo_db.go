package persistence

import (
	"fmt"
	"net/url"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"socialops/infrastructure/configuration"
)

// NewMongoDb creates a client for the audit store. Connecting is lazy; callers
// ping before relying on it.
func NewMongoDb(cfg configuration.Db) (*mongo.Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("mongo host not configured")
	}
	return mongo.Connect(options.Client().ApplyURI(mongoURI(cfg)))
}

func mongoURI(cfg configuration.Db) string {
	u := &url.URL{Scheme: "mongodb", Host: cfg.Host}
	if cfg.Port != "" {
		u.Host = cfg.Host + ":" + cfg.Port
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}
