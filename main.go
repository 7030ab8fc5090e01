package main

import "github.com/kozaktomas/cornea/cmd"

func main() {
	cmd.Execute()
}
