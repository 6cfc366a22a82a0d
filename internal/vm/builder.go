// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package vm builds command lines that launch a Java-like virtual machine.
package vm

import (
	"fmt"
	"io"

	"go.chromium.org/vogar/internal/classpath"
	"go.chromium.org/vogar/internal/process"
)

// DefaultCommand is the VM command used when none is configured.
const DefaultCommand = "java"

// Builder accumulates the configuration of a VM invocation. Every setter
// returns the Builder so calls can be chained.
//
// Build never validates its input; an invocation with e.g. an empty main
// class is rejected only when it is spawned.
type Builder struct {
	vmCommand     []string
	bootClasspath *classpath.Classpath
	classpath     *classpath.Classpath
	workingDir    string
	userDir       string
	temp          string
	debugPort     int
	mainClass     string
	vmArgs        []string
	args          []string
	env           map[string]string
	output        io.Writer
	maxLength     int
	nativeOutput  bool
}

// NewBuilder returns a Builder running DefaultCommand with empty classpaths.
func NewBuilder() *Builder {
	return &Builder{
		vmCommand:     []string{DefaultCommand},
		bootClasspath: classpath.New(),
		classpath:     classpath.New(),
		env:           make(map[string]string),
		maxLength:     process.Unbounded,
	}
}

// VMCommand replaces the leading command tokens.
func (b *Builder) VMCommand(tokens ...string) *Builder {
	b.vmCommand = append([]string(nil), tokens...)
	return b
}

// BootClasspath appends the elements of cp to the boot classpath.
func (b *Builder) BootClasspath(cp *classpath.Classpath) *Builder {
	b.bootClasspath.AddAll(cp)
	return b
}

// Classpath appends the elements of cp to the application classpath.
func (b *Builder) Classpath(cp *classpath.Classpath) *Builder {
	b.classpath.AddAll(cp)
	return b
}

// WorkingDir sets the directory the VM process is started in.
func (b *Builder) WorkingDir(dir string) *Builder {
	b.workingDir = dir
	return b
}

// UserDir sets the user.dir system property.
func (b *Builder) UserDir(dir string) *Builder {
	b.userDir = dir
	return b
}

// Temp sets the java.io.tmpdir system property.
func (b *Builder) Temp(dir string) *Builder {
	b.temp = dir
	return b
}

// DebugPort makes the VM wait for a debugger on port. A non-positive port
// disables debugging.
func (b *Builder) DebugPort(port int) *Builder {
	b.debugPort = port
	return b
}

// MainClass sets the main entry point.
func (b *Builder) MainClass(name string) *Builder {
	b.mainClass = name
	return b
}

// VMArgs appends arguments interpreted by the VM itself.
func (b *Builder) VMArgs(args ...string) *Builder {
	b.vmArgs = append(b.vmArgs, args...)
	return b
}

// Args appends program arguments passed to the main entry point.
func (b *Builder) Args(args ...string) *Builder {
	b.args = append(b.args, args...)
	return b
}

// Env sets an environment variable override.
func (b *Builder) Env(key, value string) *Builder {
	b.env[key] = value
	return b
}

// Output sets the writer that receives a copy of captured output.
func (b *Builder) Output(w io.Writer) *Builder {
	b.output = w
	return b
}

// MaxLength bounds captured output. Negative values mean unbounded.
func (b *Builder) MaxLength(n int) *Builder {
	b.maxLength = n
	return b
}

// NativeOutput selects passthrough output instead of capture.
func (b *Builder) NativeOutput(native bool) *Builder {
	b.nativeOutput = native
	return b
}

// Build returns the invocation described by the current configuration.
// It has no side effects and may be called any number of times.
func (b *Builder) Build() *process.Invocation {
	pb := process.NewBuilder()
	for k, v := range b.env {
		pb.Env(k, v)
	}

	pb.Args(b.vmCommand...)
	pb.Args("-classpath", b.classpath.String())
	// dalvikvm rejects an empty -Xbootclasspath/a: value.
	if !b.bootClasspath.IsEmpty() {
		pb.Args("-Xbootclasspath/a:" + b.bootClasspath.String())
	}
	pb.Args("-Duser.dir=" + b.userDir)
	if b.workingDir != "" {
		pb.WorkingDir(b.workingDir)
	}
	if b.temp != "" {
		pb.Args("-Djava.io.tmpdir=" + b.temp)
	}
	if b.debugPort > 0 {
		pb.Args(JDWPArg(b.debugPort))
	}
	pb.Args(b.vmArgs...)
	pb.Args(b.mainClass)
	pb.Args(b.args...)

	return pb.Tee(b.output).MaxLength(b.maxLength).NativeOutput(b.nativeOutput).Build()
}

// JDWPArg returns the VM argument that suspends the VM until a debugger
// attaches to port.
func JDWPArg(port int) string {
	return fmt.Sprintf("-Xrunjdwp:transport=dt_socket,address=%d,server=y,suspend=y", port)
}
