// Command helxpack builds a .helx archive from a staging directory: a
// manifest.json plus the native shared object it names. It validates
// the manifest before packing so a malformed package never makes it
// into the archive in the first place.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/helix-host/helix/internal/archive"
	"github.com/helix-host/helix/internal/manifest"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("helxpack", flag.ContinueOnError)
	srcDir := fs.String("dir", "", "staging directory containing manifest.json and the module binary")
	out := fs.String("out", "", "output .helx path (defaults to <name>-<version>.helx in the current directory)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: helxpack -dir <staging-dir> [-out <archive.helx>]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(argv); err != nil {
		return 2
	}
	if *srcDir == "" {
		fs.Usage()
		return 2
	}

	m, err := loadManifest(*srcDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "helxpack:", err)
		return 1
	}

	if _, err := os.Stat(filepath.Join(*srcDir, m.BinaryPath)); err != nil {
		fmt.Fprintf(os.Stderr, "helxpack: binary_path %q not found under %s: %v\n", m.BinaryPath, *srcDir, err)
		return 1
	}

	dest := *out
	if dest == "" {
		dest = fmt.Sprintf("%s-%s%s", m.Name, m.Version, archive.Extension)
	}

	if err := archive.Pack(*srcDir, dest); err != nil {
		fmt.Fprintln(os.Stderr, "helxpack: packing:", err)
		return 1
	}

	fmt.Printf("wrote %s (%s %s)\n", dest, m.Name, m.Version)
	return 0
}

func loadManifest(srcDir string) (*manifest.Manifest, error) {
	path := filepath.Join(srcDir, "manifest.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := manifest.ParseString(data)
	if err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return m, nil
}
