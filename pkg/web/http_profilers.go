package web

import (
	"net/http"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"
	"time"
)

// captureWindow is how long the cpu and trace captures record before the
// response completes.
const captureWindow = 30 * time.Second

// profiler serializes captures, the runtime supports only one of each kind
// at a time.
type profiler struct {
	mu sync.Mutex
}

func (p *profiler) cpuProfile(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := pprof.StartCPUProfile(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer pprof.StopCPUProfile()
	time.Sleep(captureWindow)
}

func (p *profiler) execTrace(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := trace.Start(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer trace.Stop()
	time.Sleep(captureWindow)
}

func (p *profiler) heapProfile(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	runtime.GC()
	_ = pprof.Lookup("heap").WriteTo(w, 0)
}
