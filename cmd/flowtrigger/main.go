package main

import (
	"context"
	"fmt"
	"os"

	"github.com/RealZimboGuy/flowtrigger/internal/cli"
)

// Version is set at build time using ldflags
var Version = "dev"

func main() {
	if err := cli.NewRootCommand(Version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
