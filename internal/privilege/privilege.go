// Package privilege finds the user behind a sudo invocation. Reading the
// memory of another process usually needs root, while config and policy
// files belong to whoever ran sudo.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// UserContext identifies the invoking user.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// DetectOriginalUser returns the user from SUDO_USER, SUDO_UID and
// SUDO_GID when running under sudo, and the current user otherwise.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return currentUser()
	}

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil, fmt.Errorf("SUDO_USER set but SUDO_UID or SUDO_GID missing")
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	u, err := user.Lookup(sudoUser)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", sudoUser, err)
	}
	return &UserContext{Username: sudoUser, UID: uid, GID: gid, HomeDir: u.HomeDir}, nil
}

func currentUser() (*UserContext, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &UserContext{Username: u.Username, UID: os.Getuid(), GID: os.Getgid(), HomeDir: u.HomeDir}, nil
}

// HomeDir returns the invoking user's home directory.
func HomeDir() (string, error) {
	if IsRunningUnderSudo() {
		u, err := DetectOriginalUser()
		if err != nil {
			return "", err
		}
		return u.HomeDir, nil
	}
	return os.UserHomeDir()
}

// IsRoot reports whether the effective UID is 0.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// IsRunningUnderSudo reports whether SUDO_USER is set.
func IsRunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}

// FixFileOwnership gives path to the user who ran sudo. Outside of sudo it
// does nothing.
func FixFileOwnership(path string) error {
	if !IsRoot() || !IsRunningUnderSudo() {
		return nil
	}
	u, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}
	if err := os.Chown(path, u.UID, u.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, u.UID, u.GID, err)
	}
	return nil
}
