package main

import "formfiller/internal/cli"

func main() {
	cli.Execute()
}
