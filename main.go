/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "lingorelay/cmd"

func main() {
	cmd.Execute()
}
