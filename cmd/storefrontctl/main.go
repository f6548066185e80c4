package main

import "github.com/vjcreations/storefront/internal/cli"

func main() {
	cli.Execute()
}
