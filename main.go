package main

import "qreplay/cmd"

func main() {
	cmd.Execute()
}
