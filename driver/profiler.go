package driver

import (
	"log"
	"os"
	"runtime"
	"runtime/pprof"
)

// Profiler wraps CPU and heap pprof capture for the lifetime of one
// process, matching the teacher's driver/profiler.go exactly.
type Profiler struct {
	f        *os.File
	filename string
}

// NewProfiler starts CPU profiling to filename; a blank filename makes
// every method a no-op, so callers can always construct one unconditionally
// from a possibly-empty -cpuprofile flag.
func NewProfiler(filename string) *Profiler {
	p := &Profiler{filename: filename}
	if filename == "" {
		return p
	}
	var err error
	p.f, err = os.Create(filename)
	if err != nil {
		log.Fatalf("driver: could not create CPU profile: %v", err)
	}
	if err := pprof.StartCPUProfile(p.f); err != nil {
		log.Fatalf("driver: could not start CPU profile: %v", err)
	}
	return p
}

// Close stops CPU profiling and writes a matching heap profile.
func (p *Profiler) Close() {
	if p.f == nil {
		return
	}
	pprof.StopCPUProfile()
	p.f.Close()

	runtime.GC()
	memProf, err := os.Create(p.filename + "-mem.prof")
	if err != nil {
		log.Printf("driver: could not create heap profile: %v", err)
		return
	}
	defer memProf.Close()
	pprof.WriteHeapProfile(memProf)
}
