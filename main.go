package main

import (
	"context"

	"github.com/bryan-buckman/dropwatch/internal/cli"
)

func main() {
	cli.ExecuteContext(context.Background())
}
