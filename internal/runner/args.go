// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runner implements the target side of an action: it accepts the
// VM-style command line produced by the host, runs the action's executable
// and reports its outcomes through a monitor.
package runner

import (
	"strconv"
	"strings"

	"go.chromium.org/vogar/errors"
	"go.chromium.org/vogar/internal/classpath"
)

// Entry points selected by the main class token.
const (
	// MainEntry runs the action and reports one outcome from its exit
	// status.
	MainEntry = "main"
	// GoTestEntry runs the action as a Go test binary and reports one
	// outcome per test.
	GoTestEntry = "gotest"
)

const monitorPortFlag = "--monitorPort"

// Config is a parsed target command line.
type Config struct {
	Classpath     *classpath.Classpath
	BootClasspath *classpath.Classpath
	// Props contains -D system properties.
	Props map[string]string
	// DebugPort is the port requested with -Xrunjdwp, or 0.
	DebugPort int
	// VMFlags contains other -X flags. They are accepted and ignored.
	VMFlags []string

	MainClass string
	// MonitorPort is the port to serve the monitor on, or -1 if the action
	// is not monitored.
	MonitorPort int
	Action      string
	// Args are passed to the action.
	Args []string
}

// ParseArgs parses a target command line, excluding the program name:
// VM options, the main class, "--monitorPort <n>" if monitored, the action
// name, then the action's arguments.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{
		Classpath:     classpath.New(),
		BootClasspath: classpath.New(),
		Props:         make(map[string]string),
		MonitorPort:   -1,
	}

	i := 0
	for ; i < len(args) && strings.HasPrefix(args[i], "-"); i++ {
		arg := args[i]
		switch {
		case arg == "-classpath" || arg == "-cp":
			if i+1 >= len(args) {
				return nil, errors.Errorf("%s needs a value", arg)
			}
			i++
			cfg.Classpath.AddAll(classpath.Parse(args[i]))
		case strings.HasPrefix(arg, "-Xbootclasspath/a:"):
			cfg.BootClasspath.AddAll(classpath.Parse(strings.TrimPrefix(arg, "-Xbootclasspath/a:")))
		case strings.HasPrefix(arg, "-Xrunjdwp:"):
			port, err := jdwpPort(strings.TrimPrefix(arg, "-Xrunjdwp:"))
			if err != nil {
				return nil, err
			}
			cfg.DebugPort = port
		case strings.HasPrefix(arg, "-X"):
			cfg.VMFlags = append(cfg.VMFlags, arg)
		case strings.HasPrefix(arg, "-D"):
			k, v, _ := strings.Cut(strings.TrimPrefix(arg, "-D"), "=")
			if k == "" {
				return nil, errors.Errorf("malformed property %q", arg)
			}
			cfg.Props[k] = v
		default:
			return nil, errors.Errorf("unknown VM option %q", arg)
		}
	}

	if i >= len(args) {
		return nil, errors.New("no main class given")
	}
	cfg.MainClass = args[i]
	if cfg.MainClass != MainEntry && cfg.MainClass != GoTestEntry {
		return nil, errors.Errorf("unknown main class %q", cfg.MainClass)
	}
	i++

	if i < len(args) && args[i] == monitorPortFlag {
		if i+1 >= len(args) {
			return nil, errors.Errorf("%s needs a value", monitorPortFlag)
		}
		port, err := strconv.Atoi(args[i+1])
		if err != nil || port < 0 || port > 65535 {
			return nil, errors.Errorf("invalid monitor port %q", args[i+1])
		}
		cfg.MonitorPort = port
		i += 2
	}

	if i >= len(args) {
		return nil, errors.New("no action given")
	}
	cfg.Action = args[i]
	cfg.Args = append([]string(nil), args[i+1:]...)
	return cfg, nil
}

// jdwpPort extracts the address from JDWP options such as
// "transport=dt_socket,address=8000,server=y,suspend=y".
func jdwpPort(opts string) (int, error) {
	for _, opt := range strings.Split(opts, ",") {
		k, v, _ := strings.Cut(opt, "=")
		if k != "address" {
			continue
		}
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Errorf("invalid debug address %q", v)
		}
		return port, nil
	}
	return 0, errors.Errorf("no debug address in %q", opts)
}
