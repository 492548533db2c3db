package main

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/studibot/internal/store"
)

func TestSeedAdminToken(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := seedAdminToken(db, ""); err != nil {
		t.Fatalf("seed empty: %v", err)
	}
	if hash, _ := db.AdminTokenHash(); hash != "" {
		t.Fatalf("hash = %q, want none", hash)
	}

	if err := seedAdminToken(db, "s3cret"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	hash, err := db.AdminTokenHash()
	if err != nil {
		t.Fatal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("stored hash does not match token: %v", err)
	}

	if err := seedAdminToken(db, ""); err != nil {
		t.Fatal(err)
	}
	if again, _ := db.AdminTokenHash(); again != hash {
		t.Error("empty token should keep the stored hash")
	}
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCredentialsCommands(t *testing.T) {
	dir := t.TempDir()

	runCLI(t, "credentials", "set", "--credentials-dir", dir, "--username", "erika", "--password", "geheim123")
	runCLI(t, "credentials", "set", "--credentials-dir", dir, "--api-key", "sk-abcdef")

	out := runCLI(t, "credentials", "show", "--credentials-dir", dir)
	for _, want := range []string{`"username": "erika"`, `"password": "*****m123"`, `"api_key": "*****cdef"`} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %s:\n%s", want, out)
		}
	}

	out = runCLI(t, "credentials", "show", "--credentials-dir", dir, "--reveal")
	if !strings.Contains(out, `"password": "geheim123"`) {
		t.Errorf("reveal output:\n%s", out)
	}

	runCLI(t, "credentials", "delete", "--credentials-dir", dir)
	if out := runCLI(t, "credentials", "show", "--credentials-dir", dir); !strings.Contains(out, "no stored credentials") {
		t.Errorf("show after delete:\n%s", out)
	}
}
