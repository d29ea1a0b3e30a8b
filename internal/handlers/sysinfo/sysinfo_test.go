package sysinfo_test

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/tramp-rpc-server/internal/handlers/sysinfo"
)

func TestInfo(t *testing.T) {
	h := &sysinfo.Handler{ServerVersion: "1.2.3"}

	result, rpcErr := h.Info(context.Background(), nil)
	require.Nil(t, rpcErr)

	info := result.(*sysinfo.Result)
	assert.Equal(t, os.Getuid(), info.UID)
	assert.Equal(t, os.Getgid(), info.GID)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, "1.2.3", info.ServerVersion)
}
