package main

import "github.com/joncrangle/idle-clicker/cmd"

func main() {
	cmd.Execute()
}
