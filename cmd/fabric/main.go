package main

import "github.com/OpenTraceLab/OpenTraceFabric/cmd/fabric/cmd"

func main() {
	cmd.Execute()
}
