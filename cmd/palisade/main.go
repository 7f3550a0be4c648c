package main

import "github.com/jmwhitley/palisade/cmd/palisade/cmd"

func main() {
	cmd.Execute()
}
