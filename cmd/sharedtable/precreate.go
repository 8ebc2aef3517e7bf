package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/acksell/sharedtable/metadata"
	"github.com/acksell/sharedtable/router"
)

func runPrecreate() error {
	fs := flag.NewFlagSet("precreate", flag.ExitOnError)
	configPath := fs.String("config", "tables.yaml", "physical-table pool config file")

	fs.Usage = func() {
		fmt.Println(`sharedtable precreate - Create every physical table listed in a config file

Usage:
  sharedtable precreate [flags]

Flags:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	factory, err := metadata.LoadFileCreateTableRequestFactory(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	physicalTables, err := factory.PrecreateTables(ctx)
	if err != nil {
		return fmt.Errorf("precreate tables: %w", err)
	}

	client, err := newBackendClient(ctx)
	if err != nil {
		return err
	}

	for _, physical := range physicalTables {
		if err := router.EnsurePhysicalTable(ctx, client, physical); err != nil {
			return fmt.Errorf("create %q: %w", physical.TableName, err)
		}
		fmt.Printf("sharedtable precreate: ensured %s\n", physical.TableName)
	}

	return nil
}
