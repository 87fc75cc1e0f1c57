package main

import "github.com/vietddude/livefeed/internal/cli"

func main() {
	cli.Execute()
}
