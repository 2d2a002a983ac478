package main

import "github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/cmd"

func main() {
	cmd.Execute()
}
