// list-ports: enumerate serial ports a detector could be attached to.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/herlein/gomca/pkg/link"
)

func main() {
	flag.Parse()

	ports, err := link.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return
	}

	fmt.Printf("Found %d serial port(s):\n", len(ports))
	for _, p := range ports {
		fmt.Printf("  %s\n", p)
	}

	fmt.Println()
	fmt.Println("Use with gmca:")
	fmt.Println("  gmca -port <port>")
}
