package main

import (
	"fmt"
	"math/rand"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gossipmesh/gossipmesh/pkg/transport"
)

func main() {
	opts := parseArgs(os.Args[1:])

	finished := make(chan struct{}, opts.Workers)
	generators := make([]*payloadGenerator, 0, opts.Workers)
	for i := uint(0); i < opts.Workers; i++ {
		pg := &payloadGenerator{
			rnd:       rand.New(rand.NewSource(rand.Int63())),
			prefix:    fmt.Sprintf("%s.w%d", opts.Prefix, i),
			size:      opts.PayloadSize,
			remaining: opts.Count / uint64(opts.Workers),
		}
		generators = append(generators, pg)
		go sendGossipWorker(opts.Target, opts.Rate/opts.Workers, pg, finished)
	}

	status := time.NewTicker(time.Second)
	for active := opts.Workers; active > 0; {
		select {
		case <-finished:
			active--
		case <-status.C:
			var remaining uint64
			for _, pg := range generators {
				remaining += atomic.LoadUint64(&pg.remaining)
			}
			fmt.Printf("%d frames remaining\n", remaining)
		}
	}
}

func sendGossipWorker(address string, rate uint, pg *payloadGenerator, finished chan<- struct{}) {
	raw, err := net.DialTimeout("tcp", address, time.Second)
	if err != nil {
		panic(err)
	}
	conn := transport.NewConn(raw)

	// Each worker paces its own slice of the target rate.
	interval := time.Second / time.Duration(rate)
	next := time.Now().Add(interval)

	sb := &strings.Builder{}
	for pg.next(sb) {
		if wait := time.Until(next); wait > 0 {
			time.Sleep(wait)
		}
		if err := conn.WriteFrame(sb.String()); err != nil {
			fmt.Printf("Pausing for 1 second, error sending frame: %v\n", err)
			time.Sleep(time.Second)
		}
		sb.Reset()
		next = next.Add(interval)
	}

	_ = conn.Close()
	finished <- struct{}{}
}
