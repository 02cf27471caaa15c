package main

import "github.com/itzamna-labs/chasqui/cmd"

func main() {
	cmd.Execute()
}
