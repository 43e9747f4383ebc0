package main

import "pyforge/internal/cli"

func main() {
	cli.Execute()
}
