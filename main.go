package main

import "github.com/andrewmarklloyd/rasp-water-panel/cmd"

func main() {
	cmd.Execute()
}
