package database

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultDatabaseName = "giftwise"

var Client *mongo.Client
var DB *mongo.Database

func Connect(mongoURI string) error {
	// Use longer timeout for Atlas connections
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(mongoURI)
	clientOptions.SetServerSelectionTimeout(10 * time.Second)
	// Free-form subdocuments (preferredSizes) decode as bson.M instead of bson.D
	clientOptions.SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	slog.Info("connecting to MongoDB", "uri", MaskURI(mongoURI))
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return err
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	Client = client
	DB = client.Database(DatabaseName(mongoURI))

	slog.Info("connected to MongoDB", "database", DB.Name())
	return nil
}

func Disconnect() error {
	if Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return Client.Disconnect(ctx)
}

// DatabaseName extracts the database from a connection string
// (mongodb://host/<name>?opts) and falls back to the default name.
func DatabaseName(mongoURI string) string {
	u, err := url.Parse(mongoURI)
	if err != nil {
		return defaultDatabaseName
	}
	name := strings.Trim(u.Path, "/")
	if name == "" {
		return defaultDatabaseName
	}
	return name
}

// MaskURI hides the password of a connection string for logging.
func MaskURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
