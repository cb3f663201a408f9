package main

import "github.com/rsahwe/evs/cli"

func main() {
	cli.Execute()
}
