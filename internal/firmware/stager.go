package firmware

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/fangrid/internal/ui"
	"github.com/natefinch/atomic"
)

// Stager holds the firmware image of an armed rollout and serves it over
// plain HTTP. Bootloader devices fetch the file named in the update
// command; flashing, chunking and verification happen on the device.
type Stager struct {
	stagingDir string
	httpPort   int

	mu       sync.Mutex
	filename string
	server   *echo.Echo
}

func NewStager(stagingDir string, httpPort int) *Stager {
	return &Stager{
		stagingDir: stagingDir,
		httpPort:   httpPort,
	}
}

// Stage writes the image atomically into the staging directory and starts
// serving it. A previously staged image is replaced.
func (s *Stager) Stage(filename string, blob []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return 0, err
	}
	path := filepath.Join(s.stagingDir, filename)
	if err := atomic.WriteFile(path, bytes.NewReader(blob)); err != nil {
		return 0, err
	}
	s.filename = filename

	s.startServer()
	ui.Info("Staged firmware %s (%d bytes) on port %d", filename, len(blob), s.httpPort)
	return int64(len(blob)), nil
}

// Clear stops the HTTP server and removes the staged image. Clearing an
// empty stager is a no-op.
func (s *Stager) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopServer()
	if s.filename == "" {
		return nil
	}
	path := filepath.Join(s.stagingDir, s.filename)
	s.filename = ""
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Filename returns the currently staged image name, or "".
func (s *Stager) Filename() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filename
}

func (s *Stager) Port() int {
	return s.httpPort
}

func (s *Stager) startServer() {
	if s.server != nil {
		return
	}
	server := echo.New()
	server.HideBanner = true
	server.Static("/", s.stagingDir)
	s.server = server

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", s.httpPort)); err != nil {
			ui.Debug("Firmware server stopped: %v", err)
		}
	}()
}

func (s *Stager) stopServer() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		ui.Warning("Error stopping firmware server: %v", err)
	}
	s.server = nil
}
