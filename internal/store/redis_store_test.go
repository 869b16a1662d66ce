package store

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.ParseUint(portStr, 10, 16)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewRedisStore(ctx, RedisConfig{
		Host:     host,
		Port:     uint16(port),
		Password: os.Getenv("REDIS_TEST_PASSWORD"),
		Prefix:   "gigescrow-test-" + uuid.NewString(),
	})
	require.NoError(t, err)
	defer s.Close()

	runStoreContract(t, s)
}
