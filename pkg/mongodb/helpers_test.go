package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/mongo/driver/topology"
)

func TestIsUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "server selection", err: fmt.Errorf("find order: %w", topology.ServerSelectionError{Wrapped: errors.New("no reachable servers")}), want: true},
		{name: "deadline", err: fmt.Errorf("update stock: %w", context.DeadlineExceeded), want: true},
		{name: "disconnected client", err: mongo.ErrClientDisconnected, want: true},
		{name: "no documents", err: mongo.ErrNoDocuments, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnavailable(tt.err))
		})
	}
}

func TestIsNoDocuments(t *testing.T) {
	assert.True(t, IsNoDocuments(fmt.Errorf("load: %w", mongo.ErrNoDocuments)))
	assert.False(t, IsNoDocuments(errors.New("other")))
}
