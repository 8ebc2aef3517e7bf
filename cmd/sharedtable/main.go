// sharedtable is a small CLI for operating the shared-table virtualization
// layer: precreating the physical-table pool, describing a tenant's virtual
// table, inspecting how a virtual table's fields resolve onto the physical
// one, and a connectivity/identity check against a real backend.
//
// # Commands
//
//	sharedtable precreate --config tables.yaml
//	sharedtable describe --tenant t1 --table orders
//	sharedtable inspect-mapping --config tables.yaml --tenant t1 --table orders
//	sharedtable whoami
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	var err error
	switch cmd {
	case "precreate":
		err = runPrecreate()
	case "describe":
		err = runDescribe()
	case "inspect-mapping":
		err = runInspectMapping()
	case "whoami":
		err = runWhoami()
	case "help", "-h", "--help":
		printUsage()
		return
	case "version", "-v", "--version":
		fmt.Printf("sharedtable version %s\n", version)
		return
	default:
		fmt.Fprintf(os.Stderr, "sharedtable: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sharedtable %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`sharedtable - shared-table virtualization layer tools

Usage:
  sharedtable <command> [flags]

Commands:
  precreate        Create every physical table listed in a config file
  describe         Print a tenant's virtual table description
  inspect-mapping  Print the resolved field mapping for a virtual table
  whoami           Resolve and print the caller's AWS identity

Examples:
  sharedtable precreate --config tables.yaml
  sharedtable describe --tenant t1 --table orders
  sharedtable inspect-mapping --config tables.yaml --tenant t1 --table orders
  sharedtable whoami

Run 'sharedtable <command> --help' for more information on a command.`)
}
