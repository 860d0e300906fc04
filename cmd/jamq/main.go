package main

import "github.com/corvino/jamq/internal/cli"

func main() {
	cli.Execute()
}
