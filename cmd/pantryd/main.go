package main

import "github.com/pantrylab/pantryd/internal/cli"

func main() {
	cli.Execute()
}
