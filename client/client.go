// Tee client example: connects to the diagnostic server and sends
// timestamped messages to the socket, a log file and the console at
// the same time through a single TeeStream.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/google/uuid"

	"github.com/pramodhegde/TeeStream/teestream"
)

func timestamp() string {
	return time.Now().Format("[2006-01-02 15:04:05] ")
}

func main() {
	var args struct {
		Host     string        `arg:"--host" default:"127.0.0.1" help:"server address to connect to"`
		Port     int           `arg:"--port" default:"12345" help:"server TCP port"`
		Log      string        `arg:"--log" default:"socket_log.txt" help:"file that receives a copy of every message"`
		Interval time.Duration `arg:"--interval" default:"1s" help:"delay between messages"`
		Count    int           `arg:"--count" help:"number of messages to send (0 = until interrupted)"`
	}
	arg.MustParse(&args)

	addr := net.JoinHostPort(args.Host, strconv.Itoa(args.Port))
	fmt.Printf("Connecting to %s\n", addr)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to server: %v\n", err)
		fmt.Fprintf(os.Stderr, "You can start the test server with: go run ./server --port %d\n", args.Port)
		os.Exit(1)
	}
	defer conn.Close()

	logFile, err := os.Create(args.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	runID := uuid.NewString()
	fmt.Printf("Logging to file: %s\n", args.Log)
	fmt.Printf("Run ID: %s\n", runID)
	fmt.Println("Press Ctrl+C to exit")
	fmt.Println()

	tee := teestream.New(conn, logFile, os.Stdout)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(args.Interval)
	defer ticker.Stop()

	counter := 0
loop:
	for args.Count == 0 || counter < args.Count {
		fmt.Fprintf(tee, "%s[%s] Message #%d: sent to socket, file and console\n",
			timestamp(), runID, counter)
		tee.Flush()
		counter++

		select {
		case <-sigs:
			fmt.Println("\nReceived interrupt, shutting down...")
			break loop
		case <-ticker.C:
		}
	}

	fmt.Fprintf(tee, "%s[%s] Connection closed. Sent %d messages.\n",
		timestamp(), runID, counter)
	tee.Flush()
}
