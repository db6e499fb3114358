package main

import "github.com/scanforge/serialscan/cmd/serialscan/cmd"

func main() {
	cmd.Execute()
}
