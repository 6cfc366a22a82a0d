// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mode turns actions into target invocations for each way of running
// them: on a host VM, on a device VM, or inside a device activity.
package mode

import (
	"fmt"
	"io"
	"path/filepath"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/classpath"
	"go.chromium.org/vogar/internal/process"
	"go.chromium.org/vogar/internal/vm"
)

// Kind identifies a mode.
type Kind int

// Supported modes.
const (
	Device Kind = iota
	Host
	Activity
)

// Monitor port conventions.
const (
	HostMonitorPort   = 8788
	DeviceMonitorPort = 8787
)

// NoMonitor is the monitor port of invocations that are not monitored.
const NoMonitor = -1

// Default commands and entry points.
const (
	DeviceVMCommand  = "dalvikvm"
	DefaultMainClass = "main"
	DefaultRunnerDir = "/sdcard/dalvikrunner"
)

// Kinds maps mode names to kinds, for use with command.EnumFlag.
var Kinds = map[string]int{
	"device":   int(Device),
	"host":     int(Host),
	"activity": int(Activity),
}

func (k Kind) String() string {
	for name, v := range Kinds {
		if Kind(v) == k {
			return name
		}
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the kind named s.
func ParseKind(s string) (Kind, error) {
	v, ok := Kinds[s]
	if !ok {
		return 0, errors.Errorf("unknown mode %q", s)
	}
	return Kind(v), nil
}

// MonitorPort returns the conventional monitor port for kind.
func MonitorPort(kind Kind) int {
	if kind == Host {
		return HostMonitorPort
	}
	return DeviceMonitorPort
}

// Monitored reports whether targets of kind report through the monitor.
func (k Kind) Monitored() bool {
	return k != Activity
}

// Options configures a Mode.
type Options struct {
	Kind Kind
	// VMCommand replaces the default VM command of the kind.
	VMCommand []string
	// JavaHome locates the host VM at JavaHome/bin/java.
	JavaHome string
	// Classpath is added to the runtime classpath of every action.
	Classpath *classpath.Classpath
	// UseBootClasspath puts the runtime classpath on the boot classpath.
	UseBootClasspath bool
	VMArgs           []string
	TargetArgs       []string
	// MainClass is the entry point of the target runner.
	MainClass string
	// RunnerDir is where per-action directories are created. For device
	// modes it is a path on the device.
	RunnerDir string
	// DebugPort, if positive, makes the VM wait for a debugger.
	DebugPort    int
	NativeOutput bool
	MaxLength    int
	// Output receives a copy of captured target output.
	Output io.Writer
	Env    map[string]string
}

// Action is a unit of work executed by one target process.
type Action struct {
	Name string
	// Classpath holds the action's own build outputs.
	Classpath *classpath.Classpath
}

// Mode creates target invocations for actions.
type Mode struct {
	opts Options
}

// New validates opts and returns a Mode.
func New(opts Options) (*Mode, error) {
	if opts.Kind == Activity {
		if len(opts.VMArgs) > 0 {
			return nil, errors.Errorf("vm args %q should not be specified for mode %v", opts.VMArgs, opts.Kind)
		}
		if len(opts.TargetArgs) > 0 {
			return nil, errors.Errorf("target args not supported with mode %v", opts.Kind)
		}
	}
	if _, ok := Kinds[opts.Kind.String()]; !ok {
		return nil, errors.Errorf("unknown mode %v", opts.Kind)
	}
	if opts.MainClass == "" {
		opts.MainClass = DefaultMainClass
	}
	if opts.RunnerDir == "" {
		opts.RunnerDir = DefaultRunnerDir
	}
	if opts.Classpath == nil {
		opts.Classpath = classpath.New()
	}
	return &Mode{opts: opts}, nil
}

// Kind returns the mode's kind.
func (m *Mode) Kind() Kind { return m.opts.Kind }

// UserDir returns the directory an action runs in.
func (m *Mode) UserDir(action *Action) string {
	return filepath.Join(m.opts.RunnerDir, action.Name)
}

// RuntimeClasspath returns the classpath needed to execute action.
func (m *Mode) RuntimeClasspath(action *Action) *classpath.Classpath {
	cp := classpath.New()
	cp.AddAll(action.Classpath)
	cp.AddAll(m.opts.Classpath)
	return cp
}

// ActionCommand returns the invocation that executes action. The program
// arguments are "--monitorPort <port>" unless monitorPort is NoMonitor, the
// action name, then the target args.
func (m *Mode) ActionCommand(action *Action, monitorPort int) *process.Invocation {
	if m.opts.Kind == Activity {
		return m.activityCommand(action)
	}

	userDir := m.UserDir(action)
	b := m.newVMBuilder(userDir)
	if m.opts.UseBootClasspath {
		b.BootClasspath(m.RuntimeClasspath(action))
	} else {
		b.Classpath(m.RuntimeClasspath(action))
	}
	if monitorPort != NoMonitor {
		b.Args("--monitorPort", fmt.Sprint(monitorPort))
	}
	b.Args(action.Name)

	return b.NativeOutput(m.opts.NativeOutput).
		UserDir(userDir).
		DebugPort(m.opts.DebugPort).
		VMArgs(m.opts.VMArgs...).
		MainClass(m.opts.MainClass).
		Args(m.opts.TargetArgs...).
		Build()
}

func (m *Mode) newVMBuilder(userDir string) *vm.Builder {
	b := vm.NewBuilder().
		WorkingDir(userDir).
		Output(m.opts.Output).
		MaxLength(m.opts.MaxLength)
	for k, v := range m.opts.Env {
		b.Env(k, v)
	}

	switch {
	case len(m.opts.VMCommand) > 0:
		b.VMCommand(m.opts.VMCommand...)
	case m.opts.Kind == Device:
		b.VMCommand(DeviceVMCommand)
	case m.opts.JavaHome != "":
		b.VMCommand(filepath.Join(m.opts.JavaHome, "bin", "java"))
	}
	if m.opts.Kind == Device {
		b.Temp(filepath.Join(m.opts.RunnerDir, "tmp"))
	}
	return b
}

// activityCommand launches the activity named by action, given as
// "package/.Class".
func (m *Mode) activityCommand(action *Action) *process.Invocation {
	b := process.NewBuilder().
		Args("am", "start", "-W", "-S", "-a", "android.intent.action.MAIN", "-n", action.Name).
		Tee(m.opts.Output).
		MaxLength(m.opts.MaxLength).
		NativeOutput(m.opts.NativeOutput)
	for k, v := range m.opts.Env {
		b.Env(k, v)
	}
	return b.Build()
}
