// Copyright 2023 LiveKit, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

// explicitly reinstall all deps
func Deps() error {
	return installTools()
}

// builds the server binary
func Build() error {
	mg.Deps(generateWire)

	fmt.Println("building...")
	if err := os.MkdirAll("bin", 0755); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-o", "bin/rtc-stack", "./cmd/server")
}

// builds binary that runs on linux amd64
func BuildLinux() error {
	mg.Deps(generateWire)

	fmt.Println("building...")
	if err := os.MkdirAll("bin", 0755); err != nil {
		return err
	}
	return sh.RunWithV(map[string]string{
		"GOOS":   "linux",
		"GOARCH": "amd64",
	}, "go", "build", "-buildvcs=false", "-o", "bin/rtc-stack-amd64", "./cmd/server")
}

// run unit tests
func Test() error {
	mg.Deps(generateWire, setULimit)
	return sh.RunV("go", "test", "-short", "./...", "-count=1")
}

// run all tests with the race detector
func TestAll() error {
	mg.Deps(generateWire, setULimit)
	return sh.RunV("go", "test", "./...", "-count=1", "-race", "-timeout=4m", "-v")
}

// cleans up builds
func Clean() {
	fmt.Println("cleaning...")
	_ = os.RemoveAll("bin")
}

// regenerate code
func Generate() error {
	mg.Deps(installDeps, generateWire)

	fmt.Println("generating...")
	return sh.RunV("go", "generate", "./...")
}

// code generation for wiring
func generateWire() error {
	mg.Deps(installDeps)

	fmt.Println("wiring...")
	return sh.RunV("wire", "./pkg/service")
}

// implicitly install deps
func installDeps() error {
	if _, err := os.Stat(os.ExpandEnv("$GOPATH/bin/wire")); err == nil {
		return nil
	}
	return installTools()
}

func installTools() error {
	tools := []string{
		"github.com/google/wire/cmd/wire@latest",
	}
	for _, t := range tools {
		if err := sh.RunV("go", "install", t); err != nil {
			return err
		}
	}
	return nil
}
