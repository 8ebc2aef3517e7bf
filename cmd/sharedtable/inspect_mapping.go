package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/acksell/sharedtable/mapping"
	"github.com/acksell/sharedtable/tenant"
)

func runInspectMapping() error {
	fs := flag.NewFlagSet("inspect-mapping", flag.ExitOnError)
	configPath := fs.String("config", "tables.yaml", "physical-table pool config file")
	tenantID := fs.String("tenant", "", "tenant id")
	table := fs.String("table", "", "virtual table name")

	fs.Usage = func() {
		fmt.Println(`sharedtable inspect-mapping - Print the resolved field mapping for a virtual table

Usage:
  sharedtable inspect-mapping --tenant ID --table NAME [flags]

Flags:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *tenantID == "" || *table == "" {
		fs.Usage()
		os.Exit(2)
	}

	ctx := tenant.WithID(context.Background(), tenant.ID(*tenantID))
	r, err := newRouter(ctx, *configPath)
	if err != nil {
		return err
	}

	tm, err := r.ResolveMapping(ctx, *table)
	if err != nil {
		return fmt.Errorf("resolve mapping for %q: %w", *table, err)
	}

	fmt.Printf("virtual table:  %s\n", tm.Virtual.TableName)
	fmt.Printf("physical table: %s\n", tm.Physical.TableName)
	fmt.Println("table-level field mappings:")
	for source, targets := range tm.VirtualToPhysical {
		for _, fm := range targets {
			if fm.IndexScope != mapping.ScopeTable {
				continue
			}
			fmt.Printf("  %-20s -> %-20s contextAware=%v\n", source, fm.TargetField, fm.ContextAware)
		}
	}
	for _, idx := range tm.SecondaryIndexes {
		fmt.Printf("index %s -> %s:\n", idx.VirtualIndexName, idx.PhysicalIndexName)
		for _, fm := range idx.Fields {
			fmt.Printf("  %-20s -> %-20s contextAware=%v\n", fm.SourceField, fm.TargetField, fm.ContextAware)
		}
	}
	return nil
}
