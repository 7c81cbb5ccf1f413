package api

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerStartStop(t *testing.T) {
	server := NewServer(zerolog.New(zerolog.NewTestWriter(t)), 0, &fakeReader{}, nil, nil)

	require.NoError(t, server.Start())
	defer server.Stop()

	_, port, err := net.SplitHostPort(server.Addr())
	require.NoError(t, err)
	url := fmt.Sprintf("http://127.0.0.1:%s/health", port)

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	require.NoError(t, server.Stop())
	_, err = http.Get(url)
	assert.Error(t, err)
}

func TestServerStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	server := NewServer(zerolog.Nop(), port, &fakeReader{}, nil, nil)
	err = server.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
}
