package main

import "github.com/stagehand-dev/stagehand/cmd"

func main() {
	cmd.Execute()
}
