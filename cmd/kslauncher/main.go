package main

import "kslauncher/cmd/kslauncher/cmd"

func main() {
	cmd.Execute()
}
