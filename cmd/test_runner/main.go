package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// integrationEnv enables the tests that talk to the live futures API.
const integrationEnv = "RSI_SCANNER_INTEGRATION"

var (
	verbose     = flag.Bool("v", false, "verbose output")
	short       = flag.Bool("short", false, "run only short tests")
	race        = flag.Bool("race", false, "enable the race detector")
	cover       = flag.Bool("cover", false, "report coverage")
	integration = flag.Bool("integration", false, "also run tests against the live exchange")
	timeout     = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp  = flag.String("run", "", "run only tests matching the regular expression")
	pkg         = flag.String("pkg", "./...", "package pattern to test")
)

func main() {
	flag.Parse()

	// Build test command
	args := []string{"test"}

	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover {
		args = append(args, "-cover")
	}

	// Live runs ignore the test cache so the exchange is actually queried
	if *integration {
		args = append(args, "-count=1")
	}

	args = append(args, fmt.Sprintf("-timeout=%s", timeout.String()))

	if *testRegexp != "" {
		args = append(args, fmt.Sprintf("-run=%s", *testRegexp))
	}

	args = append(args, *pkg)

	cmd := exec.Command("go", args...)

	env := os.Environ()
	env = append(env, "TEST_ENV=true")
	if *integration {
		env = append(env, integrationEnv+"=1")
	}
	cmd.Env = env

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s (integration=%t)\n", strings.Join(args, " "), *integration)
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		fmt.Printf("Error running tests: %v\n", err)
		os.Exit(1)
	}
}
