package main

import "rabbitry/cmd"

func main() {
	cmd.Execute()
}
