package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis tags a Redis failure with the operation that produced it and
// maps it to a status: missing key 404, timeout 504, anything else 502.
func WrapRedis(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("redis %s: %w", op, err)

	switch {
	case errors.Is(err, redis.Nil):
		return New(wrapped, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		return New(wrapped, http.StatusGatewayTimeout, RedisErrorMessage)
	default:
		return New(wrapped, http.StatusBadGateway, RedisErrorMessage)
	}
}
