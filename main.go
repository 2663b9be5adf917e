package main

import "civisync/cmd"

func main() {
	cmd.Execute()
}
