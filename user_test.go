package main

import (
	"os"
	"testing"
)

func newTestUserManager(t *testing.T) *UserManager {
	t.Helper()
	dataDir = t.TempDir()
	return &UserManager{
		users:    make(map[string]*User),
		sessions: make(map[string]*UserSession),
	}
}

func TestRegisterLoginValidate(t *testing.T) {
	um := newTestUserManager(t)

	if err := um.Register("alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if err := um.Register("alice", "other"); err == nil {
		t.Fatal("duplicate registration should fail")
	}
	if err := um.Register("  ", "pw"); err == nil {
		t.Fatal("blank username should fail")
	}
	if err := um.Register("System", "pw"); err == nil {
		t.Fatal("reserved username should fail")
	}

	if _, err := um.Login("alice", "wrong"); err == nil {
		t.Fatal("wrong password should fail")
	}
	if _, err := um.Login("nobody", "pw"); err == nil {
		t.Fatal("unknown user should fail")
	}

	token, err := um.Login("alice", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	username, err := um.ValidateToken(token)
	if err != nil || username != "alice" {
		t.Fatalf("ValidateToken = (%q, %v)", username, err)
	}

	um.Logout(token)
	if _, err := um.ValidateToken(token); err == nil {
		t.Fatal("token should be invalid after logout")
	}
}

func TestValidateUnknownToken(t *testing.T) {
	um := newTestUserManager(t)
	if _, err := um.ValidateToken("bogus"); err == nil {
		t.Fatal("unknown token should fail")
	}
}

func TestChangePassword(t *testing.T) {
	um := newTestUserManager(t)
	if err := um.Register("alice", "original"); err != nil {
		t.Fatal(err)
	}

	if err := um.ChangePassword("alice", "wrong", "newpassword"); err == nil {
		t.Fatal("wrong current password should fail")
	}
	if err := um.ChangePassword("alice", "original", "short"); err == nil {
		t.Fatal("short new password should fail")
	}
	if err := um.ChangePassword("alice", "original", "newpassword"); err != nil {
		t.Fatal(err)
	}
	if _, err := um.Login("alice", "original"); err == nil {
		t.Fatal("old password should stop working")
	}
	if _, err := um.Login("alice", "newpassword"); err != nil {
		t.Fatal(err)
	}
}

func TestUsersPersistAcrossLoad(t *testing.T) {
	um := newTestUserManager(t)
	if err := um.Register("alice", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(userPersistenceFile()); err != nil {
		t.Fatalf("users not persisted: %v", err)
	}

	fresh := &UserManager{
		users:    make(map[string]*User),
		sessions: make(map[string]*UserSession),
	}
	fresh.Load()
	if _, err := fresh.Login("alice", "hunter22"); err != nil {
		t.Fatalf("login after reload: %v", err)
	}
}
