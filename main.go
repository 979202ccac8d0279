package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"golang.org/x/term"

	"main/logger"
	"main/server"
)

const version = "untis-to-calendar v1.0.0"

func main() {
	tlsConns := true

	if len(os.Args) > 2 || len(os.Args) == 2 && os.Args[1] != "-w" {
		os.Stderr.WriteString("untis-to-calendar: invalid invocation\n")
		os.Exit(1)
	}
	if len(os.Args) == 2 {
		tlsConns = false
	}

	fmt.Print("Passphrase for stored upstream credentials: ")
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		logger.Fatal("cannot read passphrase: %v", err)
	}

	// The encryption key is the passphrase, truncated or zero-padded to
	// 32 bytes.
	key := make([]byte, 32)
	copy(key, passphrase)

	server.Announce(version)

	err = server.Configure(key)
	if err != nil {
		logger.Fatal(err)
	}

	err = server.Run(tlsConns)
	if err != nil {
		logger.Fatal(err)
	}
}
