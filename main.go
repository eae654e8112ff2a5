package main

import "github.com/smoradi/quotameter/cmd"

func main() {
	cmd.Execute()
}
