package main

import "github.com/chase3718/guitarbot/cmd"

func main() {
	cmd.Execute()
}
