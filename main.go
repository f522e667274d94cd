package main

import "github.com/nilo-qa/nilo-loadtest/cmd"

func main() {
	cmd.Execute()
}
