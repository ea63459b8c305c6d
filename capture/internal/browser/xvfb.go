// CLAUDE:SUMMARY Virtual X display for headful recording on hosts without one; reuses a display another process already serves.
package browser

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// displaySocket is the X11 socket path for a display such as ":99".
func displaySocket(display string) string {
	n := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return "/tmp/.X11-unix/X" + n
}

// startXvfb makes sure the configured display is served. A display that
// already has a socket is reused and left alone on close.
func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}
	display := m.cfg.XvfbDisplay
	sock := displaySocket(display)
	if _, err := os.Stat(sock); err == nil {
		m.cfg.Logger.Info("browser: reusing display", "display", display)
		return nil
	}

	cmd := exec.Command("Xvfb", display, "-screen", "0", "1920x1080x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start Xvfb on %s: %w", display, err)
	}
	m.xvfb = cmd

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		if time.Now().After(deadline) {
			m.stopXvfb()
			return fmt.Errorf("xvfb on %s: no socket after 3s", display)
		}
		time.Sleep(50 * time.Millisecond)
	}
	m.cfg.Logger.Info("browser: virtual display up", "display", display, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb terminates the display this manager started, if any.
func (m *Manager) stopXvfb() {
	cmd := m.xvfb
	if cmd == nil {
		return
	}
	m.xvfb = nil
	if cmd.Process == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()
	cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cmd.Process.Kill()
		<-done
	}
	m.cfg.Logger.Info("browser: virtual display down", "display", m.cfg.XvfbDisplay)
}
