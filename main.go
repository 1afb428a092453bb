package main

import "imageorganizer/cmd"

func main() {
	cmd.Execute()
}
