package main

import "github.com/bryanchriswhite/osk/cmd/osk/commands"

func main() {
	commands.Execute()
}
