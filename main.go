package main

import "github.com/BioHazard786/roomrelay/cmd"

func main() {
	cmd.Execute()
}
