package netutil

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAvailablePort(t *testing.T) {
	port, err := FindAvailablePort()
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.True(t, Port(port).IsAvailable())
}

func TestPortAvailabilityAndReachability(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port

	assert.False(t, Port(port).IsAvailable(), "bound port is not available")
	assert.True(t, RemotePort("127.0.0.1", port).IsReachable(time.Second))

	require.NoError(t, l.Close())
	assert.False(t, RemotePort("127.0.0.1", port).IsReachable(200*time.Millisecond))
}

func TestInvalidPort(t *testing.T) {
	assert.False(t, Port(-1).IsAvailable())
	assert.False(t, Port(70000).IsAvailable())
	assert.Equal(t, "localhost:80", Port(80).String())
	assert.Equal(t, "example.com:443", RemotePort("example.com", 443).String())
}
