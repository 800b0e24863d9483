package main

import "github.com/guilhermesalviano/bbcat/cmd/bbcatctl/cmd"

func main() {
	cmd.Execute()
}
