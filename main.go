package main

import "github.com/theirongolddev/voxdeck/cmd"

func main() {
	cmd.Execute()
}
