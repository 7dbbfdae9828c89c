package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("godbmcp — database MCP server (PostgreSQL, Vertica)")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  godbmcp serve       Start the MCP server on stdio")
	fmt.Println("  godbmcp doctor      Check configuration and database connectivity")
	fmt.Println("  godbmcp --help      Show this help message")
}
