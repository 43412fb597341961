package main

import "github.com/ValentinKolb/sandclock/cmd"

func main() {
	cmd.Execute()
}
