package virt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kslauncher/internal/netutil"
	"kslauncher/internal/qemu"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockExecCommand re-executes the test binary as cpio or qemu.
func mockExecCommand(command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	cmd := exec.Command(os.Args[0], cs...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

// TestHelperProcess isn't a real test. It stands in for cpio and qemu.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "No command\n")
		os.Exit(2)
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "cpio":
		names, _ := io.ReadAll(os.Stdin)
		fmt.Fprintf(os.Stdout, "CPIO:%s", names)
	case "qemu-system-x86_64":
		var serial string
		for i, a := range args {
			if a == "-serial" && i+1 < len(args) {
				serial = strings.TrimPrefix(args[i+1], "file:")
			}
		}
		console := func(line string) {
			f, err := os.OpenFile(serial, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				os.Exit(3)
			}
			fmt.Fprintln(f, line)
			f.Close()
		}
		switch os.Getenv("QEMU_HELPER_MODE") {
		case "ok":
			console("Installation complete. Powering off.")
		case "fail":
			fmt.Fprintln(os.Stderr, "qemu: could not open disk image")
			os.Exit(1)
		case "hang":
			time.Sleep(time.Minute)
		case "panic":
			console("[    3.141592] Kernel panic - not syncing: Attempted to kill init!")
			time.Sleep(time.Minute)
		}
	}
}

func newTestConfiguration(t *testing.T) *Configuration {
	t.Helper()
	conf := NewConfiguration("/images/boot.iso", []string{"/tmp/lvm-1.ks"}, "lvm-1", t.TempDir())
	conf.KernelArgs = []string{"inst.debug", "inst.updates=http://example.com/updates.img"}
	return conf
}

func argValues(args []string, flag string) []string {
	var values []string
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			values = append(values, args[i+1])
		}
	}
	return values
}

func TestNewConfiguration(t *testing.T) {
	conf := NewConfiguration("/images/boot.iso", nil, "lvm-1", "/var/tmp/kstest-lvm-1.abc")

	assert.Equal(t, DefaultRAM, conf.RAM)
	assert.Equal(t, 60*time.Minute, conf.Timeout)
	assert.Equal(t, "/var/tmp/kstest-lvm-1.abc/livemedia.log", conf.LogPath)
	assert.Equal(t, "/var/tmp/kstest-lvm-1.abc/virt-install.log", conf.InstallLogPath())
}

func TestQemuArgs(t *testing.T) {
	conf := newTestConfiguration(t)
	conf.DryRun = true
	conf.RAM = 2048
	conf.DiskPaths = []string{"/tmp/disk-a.img,cache=unsafe"}
	conf.Networks = []string{"--nic", "user,model=virtio", "--nic", "user"}
	conf.BootArgs = []string{"-cpu", "host"}
	conf.RunnerArgs = []string{"-device", "virtio-rng-pci"}
	m := NewManager(conf, nil)

	boot := &bootFiles{kernel: "/tmp/vmlinuz", initrd: "/tmp/initrd.img", label: "Fedora-S-dvd-x86_64 41", stage2: "images/install.img"}
	args, err := m.qemuArgs(boot)
	require.NoError(t, err)

	assert.Equal(t, []string{"2048"}, argValues(args, "-m"))
	assert.Equal(t, []string{"/tmp/vmlinuz"}, argValues(args, "-kernel"))
	assert.Equal(t, []string{"/tmp/initrd.img"}, argValues(args, "-initrd"))
	assert.Equal(t, []string{"file:" + conf.InstallLogPath()}, argValues(args, "-serial"))
	assert.Equal(t, []string{"none"}, argValues(args, "-display"))
	assert.Contains(t, args, "-no-reboot")
	assert.Equal(t, []string{
		"file=/images/boot.iso,media=cdrom,readonly=on",
		"file=/tmp/disk-a.img,cache=unsafe,if=virtio",
	}, argValues(args, "-drive"))
	assert.Equal(t, []string{"user,model=virtio", "user"}, argValues(args, "--nic"))
	assert.Equal(t, []string{"-device", "virtio-rng-pci"}, args[len(args)-2:])
	assert.Equal(t, []string{"host"}, argValues(args, "-cpu"))

	assert.Equal(t, []string{
		"inst.debug inst.updates=http://example.com/updates.img " +
			`inst.stage2=hd:LABEL=Fedora-S-dvd-x86_64\x2041 inst.ks=file:/lvm-1.ks console=ttyS0`,
	}, argValues(args, "-append"))
}

func TestQemuArgs_VNC(t *testing.T) {
	originalFind := netutil.FindVNCDisplay
	netutil.FindVNCDisplay = func() (int, error) { return 7, nil }
	defer func() { netutil.FindVNCDisplay = originalFind }()

	conf := newTestConfiguration(t)
	conf.VNC = true
	args, err := NewManager(conf, nil).qemuArgs(&bootFiles{})
	require.NoError(t, err)

	assert.Equal(t, []string{"127.0.0.1:7"}, argValues(args, "-vnc"))
	assert.Empty(t, argValues(args, "-display"))
	assert.NotContains(t, argValues(args, "-append")[0], "inst.stage2", "no stage2 on the ISO means no stage2 argument")
}

func TestDriveArg(t *testing.T) {
	originalGetImageInfo := qemu.GetImageInfo
	defer func() { qemu.GetImageInfo = originalGetImageInfo }()

	var probed string
	qemu.GetImageInfo = func(imagePath string) (*qemu.ImageInfo, error) {
		probed = imagePath
		return &qemu.ImageInfo{Format: "qcow2"}, nil
	}

	m := NewManager(newTestConfiguration(t), nil)
	drive, err := m.driveArg("/tmp/disk-a.img,cache=unsafe")
	require.NoError(t, err)
	assert.Equal(t, "file=/tmp/disk-a.img,cache=unsafe,if=virtio,format=qcow2", drive)
	assert.Equal(t, "/tmp/disk-a.img", probed)

	qemu.GetImageInfo = func(string) (*qemu.ImageInfo, error) {
		return nil, errors.New("qemu-img info failed")
	}
	_, err = m.driveArg("/tmp/missing.img")
	assert.Error(t, err)
}

func TestInjectKickstart(t *testing.T) {
	originalExecCommand := execCommand
	execCommand = mockExecCommand
	defer func() { execCommand = originalExecCommand }()

	src := t.TempDir()
	initrd := filepath.Join(src, "initrd.img")
	require.NoError(t, os.WriteFile(initrd, []byte("INITRD"), 0444))
	ks := filepath.Join(src, "lvm-1.ks")
	require.NoError(t, os.WriteFile(ks, []byte("text\n"), 0644))

	dst := t.TempDir()
	out, err := injectKickstart(initrd, dst, []string{ks})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dst, "initrd.img"), out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "INITRDCPIO:lvm-1.ks\n", string(data))
	assert.NoDirExists(t, filepath.Join(dst, "ks-inject"))

	plain, err := injectKickstart(initrd, t.TempDir(), nil)
	require.NoError(t, err)
	data, err = os.ReadFile(plain)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("INITRD"), data))
}

func TestRun_DryRun(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	conf := newTestConfiguration(t)
	conf.DryRun = true

	err := NewManager(conf, logger).Run(context.Background())
	require.NoError(t, err)

	assert.FileExists(t, conf.InstallLogPath())
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "dry-run: not starting qemu-system-x86_64")
	assert.Contains(t, hook.LastEntry().Message, "-kernel dry-run-mode")
}

func TestRunQemu(t *testing.T) {
	originalExecCommand := execCommand
	execCommand = mockExecCommand
	defer func() { execCommand = originalExecCommand }()

	tests := []struct {
		name       string
		mode       string
		timeout    time.Duration
		wantErr    error
		wantRecord string
	}{
		{name: "install finishes", mode: "ok", timeout: 30 * time.Second},
		{name: "qemu fails", mode: "fail", timeout: 30 * time.Second, wantRecord: RecordVMError},
		{name: "timeout", mode: "hang", timeout: 500 * time.Millisecond, wantErr: ErrTimeout, wantRecord: RecordTimeout},
		{name: "kernel panic", mode: "panic", timeout: 30 * time.Second, wantErr: ErrKernelPanic, wantRecord: RecordKernelPanic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("QEMU_HELPER_MODE", tt.mode)
			logger, hook := logtest.NewNullLogger()
			conf := newTestConfiguration(t)
			conf.Timeout = tt.timeout
			m := NewManager(conf, logger)

			args, err := m.qemuArgs(&bootFiles{kernel: "vmlinuz", initrd: "initrd.img"})
			require.NoError(t, err)

			err = m.runQemu(context.Background(), logger.WithField("test", conf.TestName), args)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.wantRecord != "":
				assert.Error(t, err)
			default:
				assert.NoError(t, err)
			}

			var messages []string
			for _, e := range hook.AllEntries() {
				messages = append(messages, e.Message)
			}
			if tt.wantRecord != "" {
				assert.True(t, containsPrefix(messages, tt.wantRecord), "no %q record in %v", tt.wantRecord, messages)
			} else {
				assert.Contains(t, messages, "virtual machine finished")
			}
		})
	}
}

func containsPrefix(messages []string, prefix string) bool {
	for _, m := range messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func TestWriteTable(t *testing.T) {
	conf := newTestConfiguration(t)
	conf.DiskPaths = []string{"/tmp/disk-a.img,cache=unsafe"}

	var buf bytes.Buffer
	conf.WriteTable(&buf)

	out := buf.String()
	assert.Contains(t, out, "SETTING")
	assert.Contains(t, out, "lvm-1")
	assert.Contains(t, out, "1h0m0s")
	assert.Contains(t, out, "/tmp/disk-a.img,cache=unsafe")
}
