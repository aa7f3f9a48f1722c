package main

import "github.com/rohits-web03/meshforge/cmd/forgectl/cmd"

func main() {
	cmd.Execute()
}
