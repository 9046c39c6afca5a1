package main

import (
	"fmt"
	"runtime"
	"sort"
)

// Version is overridden at link time with -ldflags "-X main.Version=...".
var Version = "dev"

// compiledFeatures tracks build-time feature flags via init() registration.
var compiledFeatures []string

func printFeatures() {
	fmt.Printf("Intuition ZK Engine %s\n", Version)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Println()
	fmt.Println("Compiled features:")

	sort.Strings(compiledFeatures)
	for _, f := range compiledFeatures {
		fmt.Printf("  %s\n", f)
	}
	if len(compiledFeatures) == 0 {
		fmt.Println("  (none)")
	}

	fmt.Println()
	fmt.Println("Built-in syscalls:")
	registry := DefaultSyscallRegistry()
	for _, code := range registry.Codes() {
		s, _ := registry.Lookup(code)
		fmt.Printf("  0x%08x  %-28s +%d cycles\n", uint32(code), code, s.NumExtraCycles())
	}
}
