package main

import "github.com/valkyrie-scanner/valkyrie/cmd/valkyrie"

func main() { valkyrie.Execute() }
