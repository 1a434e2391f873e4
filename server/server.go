// TCP diagnostic server for the TeeStream examples: accepts a single
// connection and prints everything it receives, so that data teed to
// a socket can be inspected by hand.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/alexflint/go-arg"

	"github.com/pramodhegde/TeeStream/teestream"
)

type Server struct {
	host string
	port int
	out  io.Writer

	mu       sync.Mutex
	ln       net.Listener
	conn     net.Conn
	shutdown sync.Once
}

func NewServer(host string, port int, out io.Writer) *Server {
	return &Server{
		host: host,
		port: port,
		out:  out,
	}
}

// Start binds the listening socket. SO_REUSEADDR is set so a port
// left in TIME_WAIT by a previous run can be rebound immediately.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	fmt.Fprintf(s.out, "Starting server on %s\n", addr)

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln.Addr()
}

// Serve accepts exactly one connection and prints every chunk it
// receives until the peer disconnects, a read fails, or Shutdown
// closes the sockets. Both blocking calls have no timeout; this is a
// manual test tool and waiting indefinitely is the intended behavior.
// Read failures and shutdown both end the loop with a nil return, so
// the process exits zero on every path except a failed bind.
func (s *Server) Serve() error {
	fmt.Fprintln(s.out, "Waiting for a connection...")

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	conn, err := ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("accept: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	fmt.Fprintf(s.out, "Connection from %s\n", conn.RemoteAddr())
	if tc, ok := conn.(*net.TCPConn); ok {
		if size, err := recvBufferSize(tc); err == nil {
			fmt.Fprintf(s.out, "Receive buffer size: %d bytes\n", size)
		}
	}

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			// Chunks may be partial lines, so no newline is appended.
			fmt.Fprintf(s.out, "Received: %s", buf[:n])
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				fmt.Fprintln(s.out, "Client disconnected")
			case errors.Is(err, net.ErrClosed):
				// Shutdown closed the connection under us.
			default:
				fmt.Fprintf(s.out, "Read error: %v\n", err)
			}
			return nil
		}
	}
}

// Shutdown closes whichever of the client connection and the
// listening socket are open, in that order. It is safe to call from
// any goroutine and on any exit path; only the first call acts.
func (s *Server) Shutdown() {
	s.shutdown.Do(func() {
		s.mu.Lock()
		conn, ln := s.conn, s.ln
		s.mu.Unlock()

		if conn != nil {
			conn.Close()
		}
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				fmt.Fprintf(s.out, "Error closing listener: %v\n", err)
			}
		}
		fmt.Fprintln(s.out, "Server shut down")
	})
}

func main() {
	var args struct {
		Host string `arg:"--host" default:"0.0.0.0" help:"interface to bind the listening socket to"`
		Port int    `arg:"--port" default:"12345" help:"TCP port to bind and listen on"`
		Log  string `arg:"--log" help:"optional file that receives a copy of all console output"`
	}
	arg.MustParse(&args)

	out := io.Writer(os.Stdout)
	if args.Log != "" {
		f, err := os.Create(args.Log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		// Threshold of one byte keeps the console live.
		tee := teestream.NewSize(4096, 1, os.Stdout, f)
		out = tee
	}

	srv := NewServer(args.Host, args.Port, out)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		// Closing the sockets unblocks Accept and Read; Serve treats
		// net.ErrClosed as a normal shutdown.
		srv.Shutdown()
	}()

	err := srv.Serve()
	srv.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
