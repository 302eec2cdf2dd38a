package main

import "github.com/dbsmedya/autoreg/cmd/autoreg/cmd"

func main() {
	cmd.Execute()
}
