// Package conversation implements the persistence service: user identity plus
// the conversations and messages tables the chat client reads and writes.
package conversation

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"gemchat/internal/redis"
	"gemchat/internal/storage"
)

// ErrInvalid marks caller mistakes (bad ids, empty content, unknown roles).
var ErrInvalid = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Service handles user lifecycle and conversation persistence.
type Service struct {
	db    *storage.DB
	cache *listCache
	log   *zap.Logger
}

// NewService builds the service. cache may be nil.
func NewService(db *storage.DB, cache *redis.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:    db,
		cache: newListCache(cache, logger),
		log:   logger,
	}
}
