// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config defines the configuration of a vogar run.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/classpath"
	"go.chromium.org/vogar/internal/command"
	"go.chromium.org/vogar/internal/environment"
	"go.chromium.org/vogar/internal/mode"
)

const (
	defaultTimeout        = 10 * time.Minute
	defaultMonitorTimeout = 30 * time.Second
	defaultVogarDir       = "/tmp/vogar"
)

// MutableConfig is similar to Config, but its fields are mutable.
// Call Freeze to obtain a Config from MutableConfig.
type MutableConfig struct {
	// See Config for descriptions of these fields.

	ConfigFile string
	VogarDir   string
	ResDir     string

	Mode   mode.Kind
	Target string

	KeyFile    string
	KeyDir     string
	SSHRetries int

	MonitorPort    int
	MonitorTimeout time.Duration
	Timeout        time.Duration
	DebugPort      int

	Classpath        []string
	UseBootClasspath bool
	VMCommand        []string
	VMArgs           []string
	TargetArgs       []string
	MainClass        string
	JavaHome         string
	DeviceRunnerDir  string

	NativeOutput bool
	MaxLength    int
	Env          map[string]string

	Clean       bool
	CleanBefore bool
	CleanAfter  bool

	Verbose bool
	Stream  bool

	Actions []string
}

// Config contains the configuration of a vogar run.
// All Config values are frozen and cannot be altered after construction.
type Config struct {
	m *MutableConfig
}

// ResDir is the directory where results and logs are written.
func (c *Config) ResDir() string { return c.m.ResDir }

// Mode is the kind of mode actions run in.
func (c *Config) Mode() mode.Kind { return c.m.Mode }

// Target is the environment spec, e.g. "adb:emulator-5554" or "ssh:dut".
func (c *Config) Target() string { return c.m.Target }

// KeyFile is the path to a private SSH key.
func (c *Config) KeyFile() string { return c.m.KeyFile }

// KeyDir is a directory containing SSH keys.
func (c *Config) KeyDir() string { return c.m.KeyDir }

// SSHRetries is the number of SSH connection retries.
func (c *Config) SSHRetries() int { return c.m.SSHRetries }

// MonitorPort is the port the target monitor listens on.
func (c *Config) MonitorPort() int { return c.m.MonitorPort }

// MonitorTimeout bounds how long the host tries to connect to the monitor.
func (c *Config) MonitorTimeout() time.Duration { return c.m.MonitorTimeout }

// Timeout is the maximum execution time of each action. Zero disables it.
func (c *Config) Timeout() time.Duration { return c.m.Timeout }

// DebugPort is the port the VM waits for a debugger on, or 0.
func (c *Config) DebugPort() int { return c.m.DebugPort }

// Classpath is added to the runtime classpath of every action.
func (c *Config) Classpath() *classpath.Classpath { return classpath.New(c.m.Classpath...) }

// UseBootClasspath reports whether the runtime classpath goes on the boot
// classpath.
func (c *Config) UseBootClasspath() bool { return c.m.UseBootClasspath }

// VMCommand overrides the VM command of the mode.
func (c *Config) VMCommand() []string { return append([]string(nil), c.m.VMCommand...) }

// VMArgs are extra VM arguments.
func (c *Config) VMArgs() []string { return append([]string(nil), c.m.VMArgs...) }

// TargetArgs are passed to each action.
func (c *Config) TargetArgs() []string { return append([]string(nil), c.m.TargetArgs...) }

// MainClass is the entry point of the target runner.
func (c *Config) MainClass() string { return c.m.MainClass }

// JavaHome locates the host VM.
func (c *Config) JavaHome() string { return c.m.JavaHome }

// DeviceRunnerDir is the per-run working directory on devices.
func (c *Config) DeviceRunnerDir() string { return c.m.DeviceRunnerDir }

// NativeOutput selects passthrough of target output.
func (c *Config) NativeOutput() bool { return c.m.NativeOutput }

// MaxLength bounds captured target output. -1 means unbounded.
func (c *Config) MaxLength() int { return c.m.MaxLength }

// Env holds environment overrides for target processes.
func (c *Config) Env() map[string]string {
	env := make(map[string]string, len(c.m.Env))
	for k, v := range c.m.Env {
		env[k] = v
	}
	return env
}

// CleanBefore reports whether stale run directories are removed first.
func (c *Config) CleanBefore() bool { return c.m.CleanBefore }

// CleanAfter reports whether run directories are removed at the end.
func (c *Config) CleanAfter() bool { return c.m.CleanAfter }

// Verbose enables debug logging.
func (c *Config) Verbose() bool { return c.m.Verbose }

// Stream prints target output as it is produced.
func (c *Config) Stream() bool { return c.m.Stream }

// Actions are the names of the actions to run.
func (c *Config) Actions() []string { return append([]string(nil), c.m.Actions...) }

// LocalTempDir returns the local scratch directory of a run.
func (c *Config) LocalTempDir(runID string) string {
	return filepath.Join(c.m.VogarDir, "run", runID)
}

// RunnerDir returns the directory per-action directories are created under.
func (c *Config) RunnerDir(runID string) string {
	if c.m.Mode == mode.Host && (c.m.Target == "" || c.m.Target == "local") {
		return filepath.Join(c.LocalTempDir(runID), "actions")
	}
	return c.m.DeviceRunnerDir
}

// ModeOptions returns the options of the run's mode.
func (c *Config) ModeOptions(runID string) mode.Options {
	return mode.Options{
		Kind:             c.m.Mode,
		VMCommand:        c.VMCommand(),
		JavaHome:         c.m.JavaHome,
		Classpath:        c.Classpath(),
		UseBootClasspath: c.m.UseBootClasspath,
		VMArgs:           c.VMArgs(),
		TargetArgs:       c.TargetArgs(),
		MainClass:        c.m.MainClass,
		RunnerDir:        c.RunnerDir(runID),
		DebugPort:        c.m.DebugPort,
		NativeOutput:     c.m.NativeOutput,
		MaxLength:        c.m.MaxLength,
		Env:              c.Env(),
	}
}

// EnvironmentOptions returns options for connecting to the environment.
func (c *Config) EnvironmentOptions() *environment.Options {
	tmp := "/tmp"
	if c.m.Mode != mode.Host {
		tmp = c.m.DeviceRunnerDir
	}
	return &environment.Options{
		TempDir:              tmp,
		KeyFile:              c.m.KeyFile,
		KeyDir:               c.m.KeyDir,
		ConnectTimeout:       10 * time.Second,
		ConnectRetries:       c.m.SSHRetries,
		ConnectRetryInterval: time.Second,
	}
}

// NewMutableConfig returns a new configuration writing under vogarDir.
func NewMutableConfig(vogarDir string) *MutableConfig {
	if vogarDir == "" {
		vogarDir = defaultVogarDir
	}
	return &MutableConfig{
		VogarDir: vogarDir,
		Env:      make(map[string]string),
	}
}

// SetFlags adds run flags to f that store values in c.
func (c *MutableConfig) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ConfigFile, "config", "", "YAML file mapping flag names to default values")
	f.StringVar(&c.ResDir, "resultsdir", "", "directory for results (default is under -vogardir)")
	f.StringVar(&c.VogarDir, "vogardir", c.VogarDir, "base directory for run files")

	mf := command.NewEnumFlag(mode.Kinds, func(v int) { c.Mode = mode.Kind(v) }, "device")
	f.Var(mf, "mode", fmt.Sprintf("where to run actions (%s; default %q)", mf.QuotedValues(), mf.Default()))
	f.StringVar(&c.Target, "target", "", `environment to run in: "local", "adb:[serial|host:port]", "ssh:[user@]host[:port]" or "docker:container"`)

	kd := filepath.Join(os.Getenv("HOME"), ".ssh")
	if _, err := os.Stat(kd); err != nil {
		kd = ""
	}
	f.StringVar(&c.KeyFile, "keyfile", "", "path to private SSH key")
	f.StringVar(&c.KeyDir, "keydir", kd, "directory containing SSH keys")
	f.IntVar(&c.SSHRetries, "sshretries", 0, "number of SSH connect retries")

	f.IntVar(&c.MonitorPort, "monitorport", 0, "port the target monitor listens on (default depends on -mode)")
	f.Var(command.NewDurationFlag(time.Second, &c.MonitorTimeout, defaultMonitorTimeout), "monitortimeout",
		"seconds to wait for the target monitor to accept a connection")
	f.Var(command.NewDurationFlag(time.Second, &c.Timeout, defaultTimeout), "timeout",
		"maximum execution time of each action in seconds; 0 disables the timeout")
	f.IntVar(&c.DebugPort, "debug", 0, "make the VM wait for a debugger on this port; disables -timeout")

	f.Var(command.NewListFlag(string(os.PathListSeparator), func(v []string) { c.Classpath = nonEmpty(v) }, nil),
		"classpath", "classpath added to every action")
	f.BoolVar(&c.UseBootClasspath, "bootclasspath", false, "put the runtime classpath on the boot classpath")
	f.Var(command.NewListFlag(" ", func(v []string) { c.VMCommand = nonEmpty(v) }, nil),
		"vmcommand", "space-separated VM command (default depends on -mode)")
	va := command.RepeatedFlag(func(v string) error {
		c.VMArgs = append(c.VMArgs, v)
		return nil
	})
	f.Var(&va, "vmarg", "argument passed to the VM (can be repeated)")
	f.StringVar(&c.MainClass, "mainclass", mode.DefaultMainClass, "entry point of the target runner")
	f.StringVar(&c.JavaHome, "javahome", "", "JDK home used in host mode")
	f.StringVar(&c.DeviceRunnerDir, "devicerunnerdir", mode.DefaultRunnerDir, "working directory on the device")

	f.BoolVar(&c.NativeOutput, "nativeoutput", false, "pass target output through instead of capturing it")
	f.IntVar(&c.MaxLength, "maxoutput", -1, "maximum bytes of captured output per action; -1 is unbounded")
	ev := command.RepeatedFlag(func(v string) error {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return errors.New(`want "name=value"`)
		}
		c.Env[k] = val
		return nil
	})
	f.Var(&ev, "env", `environment variable for target processes, as "name=value" (can be repeated)`)

	f.BoolVar(&c.Clean, "clean", true, "synonym for -cleanbefore and -cleanafter; false disables both")
	f.BoolVar(&c.CleanBefore, "cleanbefore", true, "remove stale run directories before running")
	f.BoolVar(&c.CleanAfter, "cleanafter", true, "remove run directories after running")

	f.BoolVar(&c.Verbose, "verbose", false, "log debug messages")
	f.BoolVar(&c.Stream, "stream", true, "print target output as it is produced")
}

// DeriveDefaults sets default config values to unset members, possibly
// deriving from already set members, and validates the result. It should be
// called after non-default values are set to c.
func (c *MutableConfig) DeriveDefaults() error {
	if len(c.Actions) == 0 {
		return errors.New("no actions provided")
	}
	if _, _, err := environment.ParseSpec(c.Target); err != nil {
		return err
	}

	if c.Mode == mode.Activity {
		if len(c.VMArgs) > 0 {
			return errors.Errorf("vm args %q should not be specified for mode %v", c.VMArgs, c.Mode)
		}
		if len(c.TargetArgs) > 0 {
			return errors.Errorf("target args not supported with mode %v", c.Mode)
		}
	}
	if c.JavaHome != "" {
		if _, err := os.Stat(filepath.Join(c.JavaHome, "bin", "java")); err != nil {
			return errors.Errorf("invalid java home: %s", c.JavaHome)
		}
	}
	if c.MonitorPort == 0 {
		c.MonitorPort = mode.MonitorPort(c.Mode)
	}
	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		return errors.Errorf("invalid monitor port %d", c.MonitorPort)
	}
	if c.DebugPort < 0 {
		return errors.Errorf("invalid debug port %d", c.DebugPort)
	}
	// A debugger may hold the VM indefinitely.
	if c.DebugPort > 0 {
		c.Timeout = 0
	}
	if c.Timeout < 0 || c.MonitorTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.MaxLength < -1 {
		c.MaxLength = -1
	}
	if !c.Clean {
		c.CleanBefore = false
		c.CleanAfter = false
	}
	if c.MainClass == "" {
		c.MainClass = mode.DefaultMainClass
	}
	if c.DeviceRunnerDir == "" {
		c.DeviceRunnerDir = mode.DefaultRunnerDir
	}
	if c.ResDir == "" {
		c.ResDir = filepath.Join(c.VogarDir, "results", time.Now().Format("20060102-150405"))
	}
	return nil
}

// Freeze returns a frozen configuration object.
func (c *MutableConfig) Freeze() *Config {
	return &Config{m: c}
}

func nonEmpty(vs []string) []string {
	var out []string
	for _, v := range vs {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
