package main

import "github.com/rudransh-shrivastava/peer-chat/internal/client/cmd"

func main() {
	cmd.Execute()
}
