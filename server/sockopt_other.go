//go:build !unix

package main

import (
	"errors"
	"net"
	"syscall"
)

func reuseAddr(network, address string, c syscall.RawConn) error {
	return nil
}

func recvBufferSize(conn *net.TCPConn) (int, error) {
	return 0, errors.New("receive buffer size not supported on this platform")
}
