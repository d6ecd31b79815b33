package main

import "github.com/duongvq/homelink/internal/cli"

func main() {
	cli.Execute()
}
