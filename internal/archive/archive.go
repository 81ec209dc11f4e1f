// Package archive implements the .helx package format (a gzipped tar
// archive containing a manifest and a native shared object) and the
// atomic directory promote step used by install.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/helix-host/helix/internal/hlog"
	"github.com/helix-host/helix/internal/manifest"
)

const Extension = ".helx"

var log = hlog.New("archive", nil)

// Extract unpacks the gzipped tar archive at archivePath into destDir,
// which must already exist. Paths escaping destDir are rejected.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, hdr.Name)
		if !within(destDir, target) {
			return &os.PathError{Op: "extract", Path: hdr.Name, Err: os.ErrInvalid}
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}

func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// Pack builds a gzipped tar archive at archivePath from every regular
// file under srcDir, preserving relative paths.
func Pack(srcDir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()

	tw := tar.NewWriter(gz)
	defer tw.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

// Promote atomically moves stagingDir to modulesDir/<name>. If a
// directory already exists at that path, its manifest is read: if it
// names a different module, promotion is refused (the tightened
// collision policy — see DESIGN.md open question 3, diverging from the
// source's tolerate-on-unreadable-manifest behavior: an unreadable
// existing manifest is treated as a refusal too, never as "assume
// vacant"). Otherwise the existing directory is replaced.
func Promote(stagingDir, modulesDir, name string) (string, error) {
	dest := filepath.Join(modulesDir, name)

	unlock, err := lockModulesDir(modulesDir)
	if err != nil {
		return "", err
	}
	defer unlock()

	if _, err := os.Stat(dest); err == nil {
		data, rerr := os.ReadFile(filepath.Join(dest, "manifest.json"))
		if rerr != nil {
			return "", &PromoteError{Path: dest, Reason: "existing manifest unreadable, refusing to overwrite"}
		}
		existing, perr := manifest.ParseString(data)
		if perr != nil {
			return "", &PromoteError{Path: dest, Reason: "existing manifest invalid, refusing to overwrite"}
		}
		if existing.Name != name {
			return "", &PromoteError{Path: dest, Reason: "belongs to " + existing.Name}
		}
		op := backoff.NewExponentialBackOff()
		op.MaxElapsedTime = 5 * time.Second
		if err := backoff.Retry(func() error {
			return os.RemoveAll(dest)
		}, backoff.WithContext(op, context.Background())); err != nil {
			return "", err
		}
	}

	if err := os.Rename(stagingDir, dest); err != nil {
		log.Warnf("rename promote failed, falling back to copy: %v", err)
		if err := copyDir(stagingDir, dest); err != nil {
			return "", err
		}
		os.RemoveAll(stagingDir)
	}
	return dest, nil
}

// lockModulesDir takes an exclusive advisory lock on a marker file inside
// modulesDir for the duration of a promote, guarding against a second
// helixd process racing a concurrent install against the same modules
// directory. Within one process the supervisor's ingress
// queue already serializes installs; this covers the cross-process case.
func lockModulesDir(modulesDir string) (unlock func(), err error) {
	path := filepath.Join(modulesDir, ".promote.lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: opening lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: locking %s: %w", path, err)
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

// PromoteError describes why Promote refused to overwrite an existing
// install directory.
type PromoteError struct {
	Path   string
	Reason string
}

func (e *PromoteError) Error() string {
	return "archive: refusing to promote into " + e.Path + ": " + e.Reason
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
