package main

import "github.com/Pappt04/Lilyoutube-server/cmd"

func main() {
	cmd.Execute()
}
