// Command nodestore inspects and maintains a node store.
//
// Node types are declared in the types section of the config file:
//
//	nodestore --config nodestore.yaml tables
//	nodestore get ItemType=Folder/6f1c...  --children ItemType=Document --parent
//	nodestore children root ItemType=Folder --recursive
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
