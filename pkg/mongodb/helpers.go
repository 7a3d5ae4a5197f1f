package mongodb

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

// Now returns the current time in UTC truncated to the millisecond
// precision BSON dates keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// SortAscending creates an ascending sort option
func SortAscending(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

// SortDescending creates a descending sort option
func SortDescending(field string) bson.D {
	return bson.D{{Key: field, Value: -1}}
}

// IsNoDocuments reports whether err is the driver's empty-result error.
func IsNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsUnavailable reports errors that mean the server could not be reached,
// as opposed to a rejected command.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.As(err, new(topology.ServerSelectionError)) ||
		errors.Is(err, mongo.ErrClientDisconnected)
}
