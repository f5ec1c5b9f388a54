package main

import "github.com/LENAX/frame-scheduler/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
