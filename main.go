package main

import "github.com/KaramelBytes/trialfunnel-cli/cmd"

func main() {
	cmd.Execute()
}
