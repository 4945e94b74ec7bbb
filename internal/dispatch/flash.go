package dispatch

import "sync"

// Flash tracks an armed firmware rollout. The dispatcher arms it when an
// update starts and the link worker consults it whenever a bootloader or
// version-mismatched application replies.
type Flash struct {
	mu       sync.RWMutex
	armed    bool
	version  string
	filename string
	size     int64
}

func NewFlash() *Flash {
	return &Flash{}
}

func (f *Flash) Arm(version string, filename string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.version = version
	f.filename = filename
	f.size = size
}

func (f *Flash) Disarm() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	f.version = ""
	f.filename = ""
	f.size = 0
}

func (f *Flash) Armed() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.armed
}

// Details returns the staged rollout parameters. The boolean reports
// whether a rollout is armed at all.
func (f *Flash) Details() (version string, filename string, size int64, armed bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version, f.filename, f.size, f.armed
}
