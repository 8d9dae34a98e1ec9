// Package status reads the status artifact a PPP helper leaves behind.
//
// The helper's ip-up hook writes one file per serial device, one value
// per line:
//
//	$IPREMOTE
//	$IFNAME
//	$PPPD_PID
//	$IPLOCAL
//
// Its presence means the link is up. Its modification time identifies
// the helper instance that wrote it: a new helper rewrites the file.
package status

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrIncomplete is returned for an artifact that exists but does not
// yet name both the peer and the interface.
var ErrIncomplete = errors.New("status artifact incomplete")

// Artifact is the parsed content of a status file.
type Artifact struct {
	PeerAddr  string
	Interface string
	// PID is zero unless the file named a pid greater than 1.
	PID       int
	LocalAddr string
}

// Path returns the artifact location for device under dir. A leading
// "/dev/" is dropped and remaining slashes become dots, so /dev/ttyS0
// maps to <dir>/ttyS0 and /dev/usb/tty1 to <dir>/usb.tty1.
func Path(dir, device string) string {
	name := strings.TrimPrefix(device, "/dev/")
	return filepath.Join(dir, strings.ReplaceAll(name, "/", "."))
}

// Read parses the artifact at path.
func Read(path string) (Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return Artifact{}, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(lines) < 4 {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return Artifact{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(lines) < 2 || lines[0] == "" || lines[1] == "" {
		return Artifact{}, fmt.Errorf("%s: %w", path, ErrIncomplete)
	}

	a := Artifact{PeerAddr: lines[0], Interface: lines[1]}
	if len(lines) > 2 {
		if pid, err := strconv.Atoi(lines[2]); err == nil && pid > 1 {
			a.PID = pid
		}
	}
	if len(lines) > 3 {
		a.LocalAddr = lines[3]
	}
	return a, nil
}

// ModTime returns the artifact's modification time.
func ModTime(path string) (time.Time, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Remove deletes the artifact. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Write stores a in the artifact format. The real file comes from the
// helper's ip-up hook; Write exists for tooling and tests.
func Write(path string, a Artifact) error {
	content := fmt.Sprintf("%s\n%s\n%d\n%s\n", a.PeerAddr, a.Interface, a.PID, a.LocalAddr)
	return os.WriteFile(path, []byte(content), 0o644)
}
