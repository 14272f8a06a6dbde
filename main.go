package main

import "github.com/conneroisu/seqbatch/cmd"

func main() {
	cmd.Execute()
}
