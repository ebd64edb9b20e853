package main

import "github.com/nextlevelbuilder/agentworker/cmd"

func main() {
	cmd.Execute()
}
