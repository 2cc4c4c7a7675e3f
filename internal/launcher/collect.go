package launcher

import (
	"fmt"

	"kslauncher/internal/runner"
	"kslauncher/internal/shell"
	"kslauncher/internal/virt"
)

func collect(procedure string, run func() (*runner.Output, error)) ([]string, error) {
	out, err := run()
	if err != nil {
		return nil, err
	}
	if err := out.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", procedure, err)
	}
	return out.StdoutAsArray(), nil
}

func (r *Runner) collectKernelArgs() ([]string, error) {
	args, err := collect(shell.ProcKernelArgs, r.shell.RunKernelArgs)
	if err != nil {
		return nil, err
	}
	if r.conf.UpdatesImage != "" {
		args = append(args, "inst.updates="+r.conf.UpdatesImage)
	}
	return args, nil
}

func (r *Runner) collectDisks() ([]string, error) {
	disks, err := collect(shell.ProcPrepareDisks, r.shell.RunPrepareDisks)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(disks))
	for _, d := range disks {
		paths = append(paths, d+",cache=unsafe")
	}
	return paths, nil
}

func (r *Runner) collectNetworks() ([]string, error) {
	nics, err := collect(shell.ProcPrepareNetwork, r.shell.RunPrepareNetwork)
	if err != nil {
		return nil, err
	}
	var networks []string
	for _, n := range nics {
		networks = append(networks, "--nic", n)
	}
	return networks, nil
}

// virtConfiguration collects the VM settings from the test's driver script.
func (r *Runner) virtConfiguration() (*virt.Configuration, error) {
	kernelArgs, err := r.collectKernelArgs()
	if err != nil {
		return nil, err
	}
	disks, err := r.collectDisks()
	if err != nil {
		return nil, err
	}
	networks, err := r.collectNetworks()
	if err != nil {
		return nil, err
	}
	bootArgs, err := collect(shell.ProcBootArgs, r.shell.RunBootArgs)
	if err != nil {
		return nil, err
	}
	runnerArgs, err := collect(shell.ProcAdditionalRunnerArgs, r.shell.RunAdditionalRunnerArgs)
	if err != nil {
		return nil, err
	}
	ram, err := r.conf.RAMMiB()
	if err != nil {
		return nil, err
	}

	vconf := virt.NewConfiguration(r.bootImage, []string{r.ksFile}, r.conf.TestName, r.tmpDir)
	vconf.KernelArgs = kernelArgs
	vconf.DiskPaths = disks
	vconf.Networks = networks
	vconf.BootArgs = bootArgs
	vconf.RunnerArgs = runnerArgs
	vconf.RAM = ram
	vconf.VNC = r.conf.VNC
	vconf.Timeout = r.conf.Timeout
	vconf.QemuBinary = r.conf.QemuBinary
	vconf.DryRun = r.conf.DryRun
	return vconf, nil
}
