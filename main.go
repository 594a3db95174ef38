package main

import "github.com/encodeous/loadng/cmd"

func main() {
	cmd.Execute()
}
