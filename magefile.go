//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildDspchain)
	mg.Deps(BuildBenchcomp)
	fmt.Println("Compilation finished")
	return nil
}

func BuildDspchain() error {
	fmt.Println("Building dspchain executable...")
	return buildCgo("./bin/dspchain", "./dspchain")
}

func BuildBenchcomp() error {
	fmt.Println("Building benchcomp executable...")
	return buildCgo("./bin/benchcomp", "./benchcomp")
}

func buildCgo(output string, path string) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", "build", "-o", output, path)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
