package main

import (
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gossipmesh/gossipmesh/internal/wire"
)

type payloadGenerator struct {
	remaining uint64 // atomic
	rnd       *rand.Rand
	prefix    string
	size      uint
	seq       uint64
}

// next writes one payload into sb and reports whether any remain.
func (pg *payloadGenerator) next(sb *strings.Builder) bool {
	// We can safely read this non-atomically, because this goroutine is the only one that writes to it.
	if pg.remaining == 0 {
		return false
	}
	atomic.AddUint64(&pg.remaining, ^uint64(0))
	pg.seq++
	sb.WriteString(time.Now().Format(wire.TimestampLayout))
	sb.WriteByte(':')
	sb.WriteString(pg.prefix)
	sb.WriteByte(':')
	fmt.Fprintf(sb, "Msg#%d.%x", pg.seq, pg.rnd.Int63())
	if pad := int(pg.size) - sb.Len(); pad > 0 {
		sb.WriteString(strings.Repeat("x", pad))
	}
	return true
}
