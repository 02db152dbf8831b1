package main

import "github.com/l-messias/huebot/cmd"

func main() {
	cmd.Execute()
}
