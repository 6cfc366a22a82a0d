// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	"go.chromium.org/vogar/errors"
)

// ApplyFile reads a YAML file mapping flag names to values and sets every
// flag in f that was not given explicitly on the command line. List values
// set the flag once per element, so repeated flags accumulate.
//
//	mode: host
//	timeout: 60
//	vmarg: [-ea, -Xmx1g]
func ApplyFile(f *flag.FlagSet, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	vals := make(map[string]interface{})
	if err := yaml.Unmarshal(b, &vals); err != nil {
		return errors.Wrapf(err, "failed to parse %s", path)
	}

	explicit := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { explicit[fl.Name] = true })

	names := make([]string, 0, len(vals))
	for name := range vals {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if f.Lookup(name) == nil {
			return errors.Errorf("%s: unknown flag %q", path, name)
		}
		if name == "config" || explicit[name] {
			continue
		}
		var items []interface{}
		if l, ok := vals[name].([]interface{}); ok {
			items = l
		} else {
			items = []interface{}{vals[name]}
		}
		for _, item := range items {
			if err := f.Set(name, fmt.Sprint(item)); err != nil {
				return errors.Wrapf(err, "%s: invalid value for %q", path, name)
			}
		}
	}
	return nil
}
