package main

import "github.com/adamgarcia4/goLearning/agencysync/cmd"

func main() {
	cmd.Execute()
}
