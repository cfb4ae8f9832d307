package server

import (
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart(t *testing.T) {
	server := New(prepare(), Option{Addr: "127.0.0.1:0", Timeout: 100 * time.Millisecond})
	go server.Start()
	defer server.Stop()

	require.Equal(t, READY, <-server.Event())
	assert.True(t, server.Ready())

	status, data := get(t, server, "/status")
	assert.Equal(t, 200, status)
	assert.Equal(t, []byte(`"ok"`), data)
}

func TestStop(t *testing.T) {
	server := New(prepare(), Option{Addr: "127.0.0.1:0", Timeout: 100 * time.Millisecond})
	go server.Start()

	require.Equal(t, READY, <-server.Event())
	require.NoError(t, server.Stop())

	assert.Equal(t, CLOSE, <-server.Event())
	assert.False(t, server.Ready())

	// A stopped server takes no more signals.
	assert.Error(t, server.Stop())
}

func TestRestart(t *testing.T) {
	server := New(prepare(), Option{Addr: "127.0.0.1:0", Timeout: 100 * time.Millisecond})
	go server.Start()
	defer server.Stop()

	require.Equal(t, READY, <-server.Event())
	require.NoError(t, server.Restart())

	require.Equal(t, READY, <-server.Event())
	assert.True(t, server.Ready())

	status, _ := get(t, server, "/status")
	assert.Equal(t, 200, status)
}

func TestStartBindFailure(t *testing.T) {
	holder := New(prepare(), Option{Addr: "127.0.0.1:0"})
	go holder.Start()
	defer holder.Stop()
	require.Equal(t, READY, <-holder.Event())

	port, err := holder.Port()
	require.NoError(t, err)

	server := New(prepare(), Option{Addr: fmt.Sprintf("127.0.0.1:%d", port)})
	err = server.Start()
	require.Error(t, err)
	assert.Equal(t, ERROR, <-server.Event())
	assert.False(t, server.Ready())
}

func prepare() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.GET("/status", func(ctx *gin.Context) {
		ctx.JSON(200, "ok")
	})
	return router
}

func get(t *testing.T, server *Server, path string) (int, []byte) {
	port, err := server.Port()
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d%s", port, path))
	require.NoError(t, err)

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}
