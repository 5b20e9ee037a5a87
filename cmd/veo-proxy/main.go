package main

import "github.com/rossigee/veo-video-proxy/cmd/veo-proxy/commands"

func main() {
	commands.Execute()
}
