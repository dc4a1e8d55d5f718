//go:build linux

package watcher

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemType classifies the mount a path lives on.
type FilesystemType int

const (
	FSTypeUnknown FilesystemType = iota
	FSTypeLocal
	FSTypeNFS
	FSTypeSMB
	FSTypeSSHFS
	FSTypeFUSE
)

func (t FilesystemType) String() string {
	switch t {
	case FSTypeLocal:
		return "local"
	case FSTypeNFS:
		return "nfs"
	case FSTypeSMB:
		return "smb"
	case FSTypeSSHFS:
		return "sshfs"
	case FSTypeFUSE:
		return "fuse"
	default:
		return "unknown"
	}
}

// DetectFilesystemType reports what kind of mount holds path. Files are
// resolved through their parent directory, so a file and its directory
// always classify identically.
func DetectFilesystemType(path string) FilesystemType {
	return detectFilesystemType(path)
}

func detectFilesystemType(path string) FilesystemType {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FSTypeUnknown
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FSTypeUnknown
	}
	if !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	f, err := os.Open("/proc/self/mountinfo")
	if err != nil {
		return FSTypeUnknown
	}
	defer f.Close()
	return scanMountInfo(f, abs)
}

// scanMountInfo finds the longest mount point containing path and
// classifies its filesystem type. mountinfo(5): the mount point is the
// fifth field; the type is the first field after the "-" separator.
func scanMountInfo(r io.Reader, path string) FilesystemType {
	best := -1
	found := FSTypeUnknown

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 7 {
			continue
		}
		sep := -1
		for i := 6; i < len(fields); i++ {
			if fields[i] == "-" {
				sep = i
				break
			}
		}
		if sep < 0 || sep+1 >= len(fields) {
			continue
		}
		mount := unescapeMountField(fields[4])
		if !pathWithinMount(path, mount) {
			continue
		}
		if len(mount) > best {
			best = len(mount)
			found = classifyFilesystem(fields[sep+1])
		}
	}
	return found
}

func classifyFilesystem(fstype string) FilesystemType {
	switch {
	case strings.HasPrefix(fstype, "nfs"):
		return FSTypeNFS
	case fstype == "cifs" || fstype == "smb3" || fstype == "smbfs":
		return FSTypeSMB
	case fstype == "fuse.sshfs":
		return FSTypeSSHFS
	case fstype == "fuse" || strings.HasPrefix(fstype, "fuse."):
		return FSTypeFUSE
	default:
		return FSTypeLocal
	}
}

// pathWithinMount reports whether path sits at or under mountPoint.
// "/mnt/data2" is not within "/mnt/data"; prefix checks respect path
// boundaries.
func pathWithinMount(path, mountPoint string) bool {
	if mountPoint == "" {
		return false
	}
	if mountPoint == "/" {
		return strings.HasPrefix(path, "/")
	}
	mountPoint = strings.TrimSuffix(mountPoint, "/")
	if path == mountPoint {
		return true
	}
	return strings.HasPrefix(path, mountPoint+"/")
}

// unescapeMountField decodes the octal escapes mountinfo uses for
// whitespace and backslashes in mount points: \040 space, \011 tab,
// \012 newline, \134 backslash.
func unescapeMountField(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+3 < len(s) && isOctal(s[i+1]) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			b.WriteByte((s[i+1]-'0')<<6 | (s[i+2]-'0')<<3 | (s[i+3] - '0'))
			i += 4
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

// isLinuxSSHFS reports whether path lives on an sshfs mount, the one
// remote filesystem that reliably drops inotify events entirely.
func isLinuxSSHFS(path string) bool {
	return detectFilesystemType(path) == FSTypeSSHFS
}

// isRemoteFilesystem reports whether a filesystem type needs the poll
// fallback.
func isRemoteFilesystem(t FilesystemType) bool {
	switch t {
	case FSTypeNFS, FSTypeSMB, FSTypeSSHFS, FSTypeFUSE:
		return true
	default:
		return false
	}
}
