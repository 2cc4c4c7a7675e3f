package isodev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kdomanski/iso9660"
)

// DryRunMode is reported instead of ISO metadata when nothing is mounted on purpose.
const DryRunMode = "dry-run-mode"

// ErrNotMounted is returned when ISO metadata is read before Mount.
var ErrNotMounted = errors.New("the ISO has to be mounted first")

var (
	stage2Candidates = []string{"images/install.img", "LiveOS/squashfs.img"}
	kernelCandidates = []string{"images/pxeboot/vmlinuz", "isolinux/vmlinuz"}
	initrdCandidates = []string{"images/pxeboot/initrd.img", "isolinux/initrd.img"}
)

// IsoDev handles all interaction with a boot ISO.
type IsoDev struct {
	isoPath      string
	destLocation string
	dryRun       bool

	mounted bool
	label   string
	stage2  string
	kernel  string
	initrd  string
}

// New returns a handle for isoPath that extracts its boot files under destLocation.
func New(isoPath, destLocation string, dryRun bool) *IsoDev {
	return &IsoDev{
		isoPath:      isoPath,
		destLocation: destLocation,
		dryRun:       dryRun,
	}
}

func (d *IsoDev) IsoPath() string {
	return d.isoPath
}

func (d *IsoDev) DestLocation() string {
	return d.destLocation
}

// Mount reads the ISO's volume label and directory tree and extracts the
// installer kernel and initrd into DestLocation. Nothing is mounted in the
// kernel, so no privileges are needed.
func (d *IsoDev) Mount() error {
	if d.dryRun || d.mounted {
		return nil
	}

	f, err := os.Open(d.isoPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", d.isoPath, err)
	}
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	if err != nil {
		return fmt.Errorf("failed to read ISO %s: %w", d.isoPath, err)
	}

	label, err := img.Label()
	if err != nil {
		return fmt.Errorf("failed to read ISO label of %s: %w", d.isoPath, err)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("no volume id in %s", d.isoPath)
	}

	root, err := img.RootDir()
	if err != nil {
		return fmt.Errorf("failed to read ISO root of %s: %w", d.isoPath, err)
	}

	if err := os.MkdirAll(d.destLocation, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", d.destLocation, err)
	}

	stage2, _ := findFirst(root, stage2Candidates)
	kernel, err := d.extractFirst(root, "kernel", kernelCandidates)
	if err != nil {
		return d.abort(err)
	}
	initrd, err := d.extractFirst(root, "initrd", initrdCandidates)
	if err != nil {
		return d.abort(err)
	}

	d.label, d.stage2, d.kernel, d.initrd = label, stage2, kernel, initrd
	d.mounted = true
	return nil
}

// Unmount removes the extracted boot files.
func (d *IsoDev) Unmount() error {
	if d.dryRun || !d.mounted {
		return nil
	}
	if err := os.RemoveAll(d.destLocation); err != nil {
		return fmt.Errorf("failed to remove %s: %w", d.destLocation, err)
	}
	d.mounted = false
	return nil
}

func (d *IsoDev) abort(err error) error {
	if rmErr := os.RemoveAll(d.destLocation); rmErr != nil {
		return fmt.Errorf("%w (cleanup also failed: %v)", err, rmErr)
	}
	return err
}

// Label returns the ISO volume id.
func (d *IsoDev) Label() (string, error) {
	if !d.mounted {
		if d.dryRun {
			return DryRunMode, nil
		}
		return "", fmt.Errorf("to read label: %w", ErrNotMounted)
	}
	return d.label, nil
}

// Stage2 returns the path of the installer stage2 image relative to the ISO
// root, or "" when the ISO carries none.
func (d *IsoDev) Stage2() (string, error) {
	if !d.mounted {
		if d.dryRun {
			return DryRunMode, nil
		}
		return "", fmt.Errorf("to read stage2 name: %w", ErrNotMounted)
	}
	return d.stage2, nil
}

// KernelPath returns the path of the extracted installer kernel.
func (d *IsoDev) KernelPath() (string, error) {
	return d.bootFile("kernel", d.kernel)
}

// InitrdPath returns the path of the extracted installer initrd.
func (d *IsoDev) InitrdPath() (string, error) {
	return d.bootFile("initrd", d.initrd)
}

func (d *IsoDev) bootFile(what, path string) (string, error) {
	if !d.mounted {
		if d.dryRun {
			return DryRunMode, nil
		}
		return "", fmt.Errorf("to find the %s: %w", what, ErrNotMounted)
	}
	return path, nil
}

// extractFirst copies the first candidate present on the ISO to the same
// relative path under DestLocation.
func (d *IsoDev) extractFirst(root *iso9660.File, what string, candidates []string) (string, error) {
	rel, f := findFirst(root, candidates)
	if f == nil {
		return "", fmt.Errorf("no %s found on %s (looked for %s)", what, d.isoPath, strings.Join(candidates, ", "))
	}

	dst := filepath.Join(d.destLocation, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, f.Reader()); err != nil {
		return "", fmt.Errorf("failed to extract %s from %s: %w", rel, d.isoPath, err)
	}
	return dst, out.Close()
}

func findFirst(root *iso9660.File, candidates []string) (string, *iso9660.File) {
	for _, rel := range candidates {
		if f := lookup(root, rel); f != nil && !f.IsDir() {
			return rel, f
		}
	}
	return "", nil
}

// lookup walks a slash separated path from dir. Plain ISO9660 names are
// upper case with a version suffix, Rock Ridge names are not, so names are
// compared after normalizing both.
func lookup(dir *iso9660.File, rel string) *iso9660.File {
	cur := dir
	for _, part := range strings.Split(rel, "/") {
		if !cur.IsDir() {
			return nil
		}
		children, err := cur.GetChildren()
		if err != nil {
			return nil
		}
		var next *iso9660.File
		for _, c := range children {
			if normalizeName(c.Name()) == normalizeName(part) {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

func normalizeName(name string) string {
	name, _, _ = strings.Cut(name, ";")
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// EscapeLabel escapes a volume label for use in hd:LABEL= kernel arguments.
func EscapeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r == ' ':
			b.WriteString(`\x20`)
		case r == '/':
			b.WriteString(`\x2f`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
