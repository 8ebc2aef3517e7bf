package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/acksell/sharedtable/tenant"
)

func runDescribe() error {
	fs := flag.NewFlagSet("describe", flag.ExitOnError)
	configPath := fs.String("config", "tables.yaml", "physical-table pool config file")
	tenantID := fs.String("tenant", "", "tenant id")
	table := fs.String("table", "", "virtual table name")

	fs.Usage = func() {
		fmt.Println(`sharedtable describe - Print a tenant's virtual table description

Usage:
  sharedtable describe --tenant ID --table NAME [flags]

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

	virtual, err := r.DescribeTable(ctx, *table)
	if err != nil {
		return fmt.Errorf("describe %q: %w", *table, err)
	}

	fmt.Printf("table:      %s\n", virtual.TableName)
	fmt.Printf("status:     %s\n", virtual.Status)
	fmt.Printf("hash key:   %s (%s)\n", virtual.PrimaryKey.HashKey, virtual.PrimaryKey.HashKeyType)
	if virtual.PrimaryKey.HasRangeKey() {
		fmt.Printf("range key:  %s (%s)\n", virtual.PrimaryKey.RangeKey, virtual.PrimaryKey.RangeKeyType)
	}
	for _, idx := range virtual.SecondaryIndexes {
		fmt.Printf("index:      %s (%s) hash=%s\n", idx.Name, idx.Kind, idx.PrimaryKey.HashKey)
	}
	if virtual.Stream != nil {
		fmt.Printf("stream:     %s\n", virtual.Stream.ViewType)
	}
	return nil
}
