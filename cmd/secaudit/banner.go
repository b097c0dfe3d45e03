package main

import (
	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

func printBanner() {
	fig := figure.NewColorFigure("SECAUDIT", "doom", "green", true)
	fig.Print()

	cyan := color.New(color.FgCyan)
	_, _ = cyan.Println("════════════════════════════════════════════════")
	_, _ = color.New(color.FgGreen).Println("    Android Security Audit Platform")
	_, _ = cyan.Println("════════════════════════════════════════════════")
}
