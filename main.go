package main

import (
	"oracle-router/cmd"
)

func main() {
	cmd.Execute()
}
