package main

import "github.com/varalys/skillvet/cmd/skillvet"

func main() { skillvet.Execute() }
