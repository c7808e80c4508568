/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/identserv/identityd/cmd"

func main() {
	cmd.Execute()
}
