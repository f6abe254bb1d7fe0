package wire

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gossipmesh/gossipmesh"
)

const (
	storePrefix    = "STORE-"
	peerListPrefix = "PEERS:"
	deadNodePrefix = "Dead Node:"

	peerListSeparator = ";"
)

// TimestampLayout is the wall clock layout carried in dead node reports.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrUnknownFrame is returned for input that matches no frame shape.
var ErrUnknownFrame = errors.New("unknown frame")

// Frame is a single decoded protocol frame.
type Frame interface {
	frame()
}

// Store announces the sender's listen address to a registry.
type Store struct {
	Addr gossipmesh.Address
}

// PeerList is a registry snapshot. Entries that fail to parse are collected
// in Malformed, the rest of the list stays usable.
type PeerList struct {
	Addrs     []gossipmesh.Address
	Malformed []string
}

// DeadNode reports a failed node to a registry.
type DeadNode struct {
	Addr     gossipmesh.Address
	Time     time.Time
	Reporter string
}

// Gossip is an application payload flooded through the overlay.
type Gossip struct {
	Payload string
}

func (Store) frame()    {}
func (PeerList) frame() {}
func (DeadNode) frame() {}
func (Gossip) frame()   {}

// ParseFrame decodes a single frame. Input that matches no structured frame
// but carries a colon is treated as a gossip payload.
func ParseFrame(s string) (Frame, error) {
	switch {
	case strings.HasPrefix(s, storePrefix):
		return parseStore(s[len(storePrefix):])
	case strings.HasPrefix(s, peerListPrefix):
		return parsePeerList(s[len(peerListPrefix):]), nil
	case strings.HasPrefix(s, deadNodePrefix):
		return parseDeadNode(s[len(deadNodePrefix):])
	case strings.IndexByte(s, ':') >= 0:
		return Gossip{Payload: s}, nil
	default:
		return nil, ErrUnknownFrame
	}
}

func parseStore(rest string) (Frame, error) {
	addr, err := gossipmesh.ParseAddress(rest)
	if err != nil {
		return nil, fmt.Errorf("store frame: %w", err)
	}
	return Store{Addr: addr}, nil
}

func parsePeerList(rest string) PeerList {
	var pl PeerList
	if rest == "" {
		return pl
	}
	for _, entry := range strings.Split(rest, peerListSeparator) {
		if entry == "" {
			continue
		}
		addr, err := gossipmesh.ParseAddress(entry)
		if err != nil {
			pl.Malformed = append(pl.Malformed, entry)
			continue
		}
		pl.Addrs = append(pl.Addrs, addr)
	}
	return pl
}

// parseDeadNode peels the reporter off the end, then the fixed width
// timestamp, leaving the dead node's address. The timestamp itself contains
// colons so a plain split would cut it apart.
func parseDeadNode(rest string) (Frame, error) {
	reporterSep := strings.LastIndexByte(rest, ':')
	if reporterSep < 0 {
		return nil, fmt.Errorf("dead node frame: missing reporter")
	}
	reporter := rest[reporterSep+1:]
	if reporter == "" {
		return nil, fmt.Errorf("dead node frame: empty reporter")
	}
	rest = rest[:reporterSep]
	if len(rest) < len(TimestampLayout)+1 || rest[len(rest)-len(TimestampLayout)-1] != ':' {
		return nil, fmt.Errorf("dead node frame: missing timestamp")
	}
	at, err := time.Parse(TimestampLayout, rest[len(rest)-len(TimestampLayout):])
	if err != nil {
		return nil, fmt.Errorf("dead node frame: %w", err)
	}
	addr, err := gossipmesh.ParseAddress(rest[:len(rest)-len(TimestampLayout)-1])
	if err != nil {
		return nil, fmt.Errorf("dead node frame: %w", err)
	}
	return DeadNode{Addr: addr, Time: at, Reporter: reporter}, nil
}

// EncodeStore encodes a listen address announcement.
func EncodeStore(addr gossipmesh.Address) string {
	return storePrefix + addr.String()
}

// EncodePeerList encodes a registry snapshot. An empty snapshot encodes as
// the bare prefix.
func EncodePeerList(addrs []gossipmesh.Address) string {
	if len(addrs) == 0 {
		return peerListPrefix
	}
	entries := make([]string, len(addrs))
	for i, a := range addrs {
		entries[i] = a.String()
	}
	return peerListPrefix + strings.Join(entries, peerListSeparator)
}

// EncodeDeadNode encodes a dead node report.
func EncodeDeadNode(addr gossipmesh.Address, at time.Time, reporter string) string {
	return deadNodePrefix + addr.String() + ":" + at.Format(TimestampLayout) + ":" + reporter
}
