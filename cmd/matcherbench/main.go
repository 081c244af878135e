// Command matcherbench is an interactive host-side client for the
// impedance matcher's USB serial shell: it opens the port, then forwards
// whatever you type as an opcode line and prints every response line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"rfmatch/hostserial"
)

var (
	device = flag.String("device", "/dev/ttyACM0", "Serial device path")
)

func main() {
	flag.Parse()

	fmt.Printf("Connecting to %s...\n", *device)
	client, err := hostserial.Connect(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	fmt.Println("Connected. Type an opcode line (dh for help), or quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" || line == "q" {
			return
		}

		resp, err := client.Command(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		for _, l := range resp {
			fmt.Println(l)
		}
	}
}
