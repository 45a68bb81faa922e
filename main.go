package main

import "github.com/chadmayfield/stationd/cmd"

func main() {
	cmd.Execute()
}
