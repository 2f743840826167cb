// Package proxyproto implements the handshake for the PROXY protocol
// version 2 binary preamble, as described in
// https://www.haproxy.org/download/2.8/doc/proxy-protocol.txt: a peer in
// front of the listener (a load balancer or proxy) prepends this preamble
// to carry the original client address through to the application.
package proxyproto

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
)

var sig = [12]byte{
	0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A,
}

var (
	errBadSignature = errors.New("proxyproto: bad signature")
	errBadVersion   = errors.New("proxyproto: unsupported version")
	errBadFamily    = errors.New("proxyproto: unsupported address family")
	errShortHeader  = errors.New("proxyproto: truncated header")
)

const (
	cmdLocal = 0x0
	cmdProxy = 0x1

	famUnspec = 0x0
	famInet   = 0x1
	famInet6  = 0x2
	famUnix   = 0x3

	protoUnspec = 0x0
	protoStream = 0x1
	protoDgram  = 0x2
)

// Handshake reads one PROXY protocol v2 header from r, which is expected
// to be backed by a network connection, and returns the source and
// destination addresses it carries. Any timeouts must be set by the
// caller on the underlying connection; this is a parsing helper only.
//
// A LOCAL command (used by health checks and load balancer keepalives,
// carrying no meaningful address information) is reported by returning
// nil, nil, nil: the caller should fall back to the connection's own
// addresses.
func Handshake(r *bufio.Reader) (src, dst net.Addr, err error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, nil, err
	}

	if !bytesEqual(hdr[:12], sig[:]) {
		return nil, nil, errBadSignature
	}

	verCmd := hdr[12]
	if verCmd>>4 != 0x2 {
		return nil, nil, errBadVersion
	}
	cmd := verCmd & 0x0F

	famProto := hdr[13]
	family := famProto >> 4
	proto := famProto & 0x0F
	_ = proto // stream vs. datagram does not affect address parsing

	addrLen := binary.BigEndian.Uint16(hdr[14:16])

	body := make([]byte, addrLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, errShortHeader
	}

	if cmd == cmdLocal {
		return nil, nil, nil
	}

	switch family {
	case famInet:
		if len(body) < 12 {
			return nil, nil, errShortHeader
		}
		srcIP := net.IP(body[0:4])
		dstIP := net.IP(body[4:8])
		srcPort := binary.BigEndian.Uint16(body[8:10])
		dstPort := binary.BigEndian.Uint16(body[10:12])
		return &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			&net.TCPAddr{IP: dstIP, Port: int(dstPort)}, nil

	case famInet6:
		if len(body) < 36 {
			return nil, nil, errShortHeader
		}
		srcIP := net.IP(body[0:16])
		dstIP := net.IP(body[16:32])
		srcPort := binary.BigEndian.Uint16(body[32:34])
		dstPort := binary.BigEndian.Uint16(body[34:36])
		return &net.TCPAddr{IP: srcIP, Port: int(srcPort)},
			&net.TCPAddr{IP: dstIP, Port: int(dstPort)}, nil

	case famUnix:
		if len(body) < 216 {
			return nil, nil, errShortHeader
		}
		srcPath := cString(body[0:108])
		dstPath := cString(body[108:216])
		return &net.UnixAddr{Name: srcPath, Net: "unix"},
			&net.UnixAddr{Name: dstPath, Net: "unix"}, nil

	case famUnspec:
		return nil, nil, nil

	default:
		return nil, nil, errBadFamily
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
