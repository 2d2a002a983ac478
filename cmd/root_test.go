package cmd

import (
	"strings"
	"testing"
)

func TestSubcommandRouting(t *testing.T) {
	paths := [][]string{
		{"serve"},
		{"fit"},
		{"predict"},
		{"models", "list"},
		{"models", "get"},
		{"models", "delete"},
		{"series", "list"},
		{"series", "get"},
		{"series", "put"},
		{"series", "delete"},
		{"fetch"},
		{"transform", "pct-change"},
		{"transform", "diff"},
		{"transform", "log"},
		{"transform", "normalize"},
		{"transform", "index"},
		{"transform", "resample"},
		{"transform", "filter"},
		{"transform", "roll"},
		{"transform", "lag"},
		{"transform", "decompose"},
		{"analyze", "summary"},
		{"analyze", "trend"},
		{"diagnose"},
		{"chart", "bar"},
		{"chart", "plot"},
		{"chart", "forecast"},
		{"config", "init"},
		{"config", "get"},
		{"config", "set"},
		{"store", "stats"},
		{"store", "clear"},
		{"store", "compact"},
		{"store", "path"},
		{"version"},
		{"completion"},
	}
	for _, p := range paths {
		c, rest, err := rootCmd.Find(p)
		if err != nil {
			t.Errorf("%v: %v", p, err)
			continue
		}
		if len(rest) != 0 || c.Name() != p[len(p)-1] {
			t.Errorf("%v resolved to %q (leftover %v)", p, c.CommandPath(), rest)
		}
	}
}

func TestEveryCommandHasShortHelp(t *testing.T) {
	for _, c := range rootCmd.Commands() {
		if strings.TrimSpace(c.Short) == "" {
			t.Errorf("%s has no short description", c.CommandPath())
		}
		for _, sub := range c.Commands() {
			if strings.TrimSpace(sub.Short) == "" {
				t.Errorf("%s has no short description", sub.CommandPath())
			}
		}
	}
}

func TestStartProfileRejectsUnknownMode(t *testing.T) {
	if err := startProfile("heap"); err == nil {
		t.Fatal("expected error for unknown profile mode")
	}
	if err := startProfile(""); err != nil {
		t.Fatalf("empty mode: %v", err)
	}
	if profiler != nil {
		t.Fatal("no profiler should be running")
	}
}
