//go:build mage

// Package main provides build targets for the cartsync project using Mage.
//
// Usage:
//
//	mage build     Compile the cart binary to bin/
//	mage test      Run all tests
//	mage race      Run all tests with the race detector
//	mage cover     Write a coverage profile to bin/coverage.out
//	mage lint      Run golangci-lint
//	mage clean     Remove build artifacts
//	mage install   Install cart to GOPATH/bin
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "cart"
	binaryDir  = "bin"
	cmdDir     = "./cmd/cart"
)

// Build compiles the cart binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs all tests with the race detector.
func Race() error {
	return sh.RunV(binGo, "test", "-race", "-count=1", "./...")
}

// Cover writes a coverage profile and prints the per-function summary.
func Cover() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	profile := filepath.Join(binaryDir, "coverage.out")
	if err := sh.RunV(binGo, "test", "-coverprofile="+profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+profile)
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	return sh.Copy(filepath.Join(gopath, "bin", binaryName), filepath.Join(binaryDir, binaryName))
}
