package virt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"kslauncher/internal/isodev"
	"kslauncher/internal/logwatcher"
	"kslauncher/internal/netutil"
	"kslauncher/internal/pidfile"
	"kslauncher/internal/qemu"
	"kslauncher/internal/util"
	"kslauncher/internal/waiter"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"
)

var (
	ErrTimeout     = errors.New("installation timed out")
	ErrKernelPanic = errors.New("kernel panic during installation")
)

// Records written to the controller log for the log validator.
const (
	RecordTimeout     = "Install failed due to timeout"
	RecordKernelPanic = "Install failed due to kernel panic"
	RecordVMError     = "Install failed due to virtual machine error"
)

// KernelPanicPattern matches the guest kernel's panic line on the console.
var KernelPanicPattern = regexp.MustCompile(`Kernel panic - not syncing`)

// Manager runs the installation VM of one test.
type Manager struct {
	conf *Configuration
	log  logrus.FieldLogger
}

func NewManager(conf *Configuration, log logrus.FieldLogger) *Manager {
	return &Manager{conf: conf, log: log}
}

type bootFiles struct {
	kernel string
	initrd string
	label  string
	stage2 string
}

// Run boots the installer and waits for the VM to power off. The install
// runs until the VM exits, the timeout expires or the guest kernel panics.
func (m *Manager) Run(ctx context.Context) error {
	log := m.log.WithField("test", m.conf.TestName)

	iso := isodev.New(m.conf.BootImage, filepath.Join(m.conf.TempDir, "iso"), m.conf.DryRun)
	if err := iso.Mount(); err != nil {
		return m.fail(log, err)
	}
	defer func() {
		if err := iso.Unmount(); err != nil {
			log.WithError(err).Warn("failed to unmount boot image")
		}
	}()

	boot, err := m.prepareBoot(iso)
	if err != nil {
		return m.fail(log, err)
	}

	args, err := m.qemuArgs(boot)
	if err != nil {
		return m.fail(log, err)
	}

	if m.conf.DryRun {
		log.Infof("dry-run: not starting %s %s", m.conf.QemuBinary, shellquote.Join(args...))
		if err := os.WriteFile(m.conf.InstallLogPath(), nil, 0644); err != nil {
			return m.fail(log, err)
		}
		return nil
	}
	return m.runQemu(ctx, log, args)
}

func (m *Manager) fail(log *logrus.Entry, err error) error {
	log.Errorf("%s: %v", RecordVMError, err)
	return err
}

func (m *Manager) prepareBoot(iso *isodev.IsoDev) (*bootFiles, error) {
	label, err := iso.Label()
	if err != nil {
		return nil, err
	}
	stage2, err := iso.Stage2()
	if err != nil {
		return nil, err
	}
	kernel, err := iso.KernelPath()
	if err != nil {
		return nil, err
	}
	initrd, err := iso.InitrdPath()
	if err != nil {
		return nil, err
	}
	boot := &bootFiles{kernel: kernel, initrd: initrd, label: label, stage2: stage2}
	if m.conf.DryRun {
		return boot, nil
	}

	if boot.kernel, err = util.CopyPreserve(kernel, m.conf.TempDir); err != nil {
		return nil, fmt.Errorf("failed to copy kernel: %w", err)
	}
	if boot.initrd, err = injectKickstart(initrd, m.conf.TempDir, m.conf.KsPaths); err != nil {
		return nil, err
	}
	return boot, nil
}

func (m *Manager) kernelCmdline(boot *bootFiles) string {
	kargs := append([]string{}, m.conf.KernelArgs...)
	if boot.stage2 != "" {
		kargs = append(kargs, "inst.stage2=hd:LABEL="+isodev.EscapeLabel(boot.label))
	}
	if len(m.conf.KsPaths) > 0 {
		kargs = append(kargs, "inst.ks=file:/"+filepath.Base(m.conf.KsPaths[0]))
	}
	kargs = append(kargs, "console=ttyS0")
	return strings.Join(kargs, " ")
}

func (m *Manager) qemuArgs(boot *bootFiles) ([]string, error) {
	args := []string{
		"-name", m.conf.TestName,
		"-machine", "accel=kvm:tcg",
		"-m", strconv.Itoa(m.conf.RAM),
		"-smp", "2",
		"-no-reboot",
		"-serial", "file:" + m.conf.InstallLogPath(),
		"-pidfile", m.conf.PidPath(),
		"-kernel", boot.kernel,
		"-initrd", boot.initrd,
		"-append", m.kernelCmdline(boot),
		"-drive", "file=" + m.conf.BootImage + ",media=cdrom,readonly=on",
	}

	for _, disk := range m.conf.DiskPaths {
		drive, err := m.driveArg(disk)
		if err != nil {
			return nil, err
		}
		args = append(args, "-drive", drive)
	}
	args = append(args, m.conf.Networks...)

	if m.conf.VNC {
		display, err := netutil.FindVNCDisplay()
		if err != nil {
			return nil, err
		}
		args = append(args, "-vnc", fmt.Sprintf("127.0.0.1:%d", display))
	} else {
		args = append(args, "-display", "none")
	}

	args = append(args, m.conf.BootArgs...)
	args = append(args, m.conf.RunnerArgs...)
	return args, nil
}

// driveArg turns "<path>[,opts]" into a virtio -drive value with the image
// format probed by qemu-img.
func (m *Manager) driveArg(disk string) (string, error) {
	drive := "file=" + disk + ",if=virtio"
	if m.conf.DryRun {
		return drive, nil
	}
	path, _, _ := strings.Cut(disk, ",")
	info, err := qemu.GetImageInfo(path)
	if err != nil {
		return "", err
	}
	return drive + ",format=" + info.Format, nil
}

func (m *Manager) runQemu(ctx context.Context, log *logrus.Entry, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, m.conf.Timeout)
	defer cancel()
	defer func() {
		if err := pidfile.Kill(m.conf.PidPath()); err != nil {
			log.WithError(err).Warn("failed to stop leftover qemu")
		}
	}()

	if err := os.WriteFile(m.conf.InstallLogPath(), nil, 0644); err != nil {
		return m.fail(log, err)
	}
	matches, err := logwatcher.Watch(runCtx, m.conf.InstallLogPath(), KernelPanicPattern)
	if err != nil {
		return m.fail(log, err)
	}
	panicked := make(chan string, 1)
	go func() {
		if match, ok := <-matches; ok {
			panicked <- match.Line
			cancel()
		}
	}()

	log.Debugf("running %s %s", m.conf.QemuBinary, shellquote.Join(args...))
	out := log.WriterLevel(logrus.InfoLevel)
	defer out.Close()

	cmd := execCommand(m.conf.QemuBinary, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return m.fail(log, fmt.Errorf("failed to start %s: %w", m.conf.QemuBinary, err))
	}

	err = waiter.ForExit(runCtx, cmd, fmt.Sprintf("Installing %s", m.conf.TestName))

	select {
	case line := <-panicked:
		log.Errorf("%s: %s", RecordKernelPanic, line)
		return ErrKernelPanic
	default:
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		log.Errorf("%s after %s", RecordTimeout, m.conf.Timeout)
		return ErrTimeout
	}
	if err != nil {
		return m.fail(log, fmt.Errorf("qemu failed: %w", err))
	}
	log.Info("virtual machine finished")
	return nil
}
