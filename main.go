package main

import "github.com/jcdickinson/eguinet/cmd"

func main() {
	cmd.Execute()
}
