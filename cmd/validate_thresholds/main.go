// validate_thresholds compiles a threshold document and reports the version
// it would publish. Operators run it before a live reload: exit code 0 means
// the service would accept the file.
package main

import (
	"flag"
	"fmt"
	"os"

	"futures-advisor/internal/thresholds"
)

func main() {
	printDefaults := flag.Bool("defaults", false, "print the built-in default document and exit")
	flag.Parse()

	if *printDefaults {
		data, err := thresholds.DefaultYAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render defaults: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
		return
	}

	path := flag.Arg(0)
	if path == "" {
		fmt.Fprintln(os.Stderr, "usage: validate_thresholds [-defaults] <thresholds.yaml>")
		os.Exit(2)
	}

	t, err := thresholds.Compile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %s\n", path)
	fmt.Printf("version: %s\n", t.Version())
}
