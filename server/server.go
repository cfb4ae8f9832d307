// Package server wraps the HTTP listener lifecycle. Start blocks until the
// server is told to stop or restart, or until serving fails; the event
// channel announces readiness to whoever launched it.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yaoapp/duan/errs"
	"github.com/yaoapp/kun/log"
)

const (
	// CREATED the server was created but never started
	CREATED = uint8(iota)
	// STARTING the server is binding its listener
	STARTING
	// READY the server accepts connections
	READY
	// RESTARTING the server is cycling its listener
	RESTARTING
	// CLOSED the server was stopped
	CLOSED
)

const (
	// CLOSE ask the server to shut down
	CLOSE = uint8(iota)
	// RESTART ask the server to cycle its listener
	RESTART
	// ERROR serving failed
	ERROR
)

// Option configures the listener.
type Option struct {
	Addr    string        `json:"addr,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"` // graceful shutdown deadline
}

// Server serves a gin router over TCP.
type Server struct {
	router *gin.Engine
	addr   net.Addr
	signal chan uint8
	event  chan uint8
	status uint8
	option *Option
}

// New creates a server for the router.
func New(router *gin.Engine, option Option) *Server {
	if option.Timeout == 0 {
		option.Timeout = 5 * time.Second
	}
	return &Server{
		router: router,
		option: &option,
		signal: make(chan uint8, 1),
		event:  make(chan uint8, 1),
		status: CREATED,
	}
}

// Event exposes the lifecycle events (READY, CLOSE, ERROR) for callers
// that wait on startup or shutdown.
func (server *Server) Event() chan uint8 {
	return server.event
}

// Port returns the port the listener is bound to. Useful when the
// configured address asks the kernel to pick one.
func (server *Server) Port() (int, error) {
	addr, ok := server.addr.(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("can't get port of %v", server.addr)
	}
	return addr.Port, nil
}

// Ready checks if the server accepts connections.
func (server *Server) Ready() bool {
	return server.status == READY
}

// Start binds the listener and blocks until Stop, Restart or a serve
// failure. The listener is bound synchronously, so a nil error from the
// bind means the address is taken and held.
func (server *Server) Start() error {

	switch server.status {
	case READY:
		return fmt.Errorf("server already started")
	case STARTING:
		return fmt.Errorf("server is starting")
	}
	server.status = STARTING

	listener, err := net.Listen("tcp", server.option.Addr)
	if err != nil {
		log.Error("[Server] %s %s", server.option.Addr, err.Error())
		server.status = CREATED
		server.notify(ERROR)
		return errs.Wrap(errs.Http, err)
	}

	server.addr = listener.Addr()
	srv := &http.Server{Addr: server.addr.String(), Handler: server.router}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	server.status = READY
	server.notify(READY)
	log.Info("[Server] %s is ready", server.addr)

	for {
		select {
		case err := <-serveErr:
			log.Error("[Server] %s %s", server.addr, err.Error())
			server.status = CLOSED
			server.notify(ERROR)
			return errs.Wrap(errs.Http, err)

		case signal := <-server.signal:
			switch signal {

			case CLOSE:
				if err := server.shutdown(srv); err != nil {
					log.Error("[Server] %s close error (%s)", server.addr, err.Error())
					server.status = CLOSED
					server.notify(ERROR)
					return err
				}
				log.Info("[Server] %s was closed", server.addr)
				server.status = CLOSED
				server.notify(CLOSE)
				return nil

			case RESTART:
				server.status = RESTARTING
				if err := server.shutdown(srv); err != nil {
					log.Error("[Server] %s restart error (%s)", server.addr, err.Error())
					server.status = CLOSED
					server.notify(ERROR)
					return err
				}
				log.Info("[Server] %s was closed (for restarting)", server.addr)
				server.status = CREATED
				return server.Start()

			default:
				server.status = CLOSED
				server.notify(ERROR)
				return fmt.Errorf("got an unknown signal %d", signal)
			}
		}
	}
}

// Stop shuts the server down gracefully.
func (server *Server) Stop() error {
	if server.status != READY {
		return fmt.Errorf("server is not ready")
	}
	server.signal <- CLOSE
	return nil
}

// Restart cycles the listener on the configured address.
func (server *Server) Restart() error {
	if server.status != READY {
		return fmt.Errorf("server is not ready")
	}
	server.signal <- RESTART
	return nil
}

// shutdown drains in-flight requests within the configured deadline.
func (server *Server) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), server.option.Timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return errs.Wrap(errs.Http, err)
	}
	return nil
}

// notify never blocks; if nobody consumed the previous event the new
// one is dropped.
func (server *Server) notify(event uint8) {
	select {
	case server.event <- event:
	default:
	}
}
