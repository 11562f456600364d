package main

import "testing"

func TestNewRootCmdMetadata(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "podcache" {
		t.Fatalf("expected Use %q, got %q", "podcache", cmd.Use)
	}
	if cmd.RunE == nil {
		t.Fatal("expected RunE to be set")
	}
}
