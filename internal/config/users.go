package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nilo-qa/nilo-loadtest/internal"
	"github.com/nilo-qa/nilo-loadtest/internal/auth"
	"gopkg.in/yaml.v3"
)

// ErrNoUsers is returned when a users file has no entry for the application.
var ErrNoUsers = errors.New("no users for application")

type usersFile struct {
	Users []auth.Credentials `yaml:"users" json:"users"`
}

// Users is the credential pool of a run.
type Users struct {
	list []auth.Credentials
}

// NewUsers builds a pool from creds. It panics on an empty list.
func NewUsers(creds ...auth.Credentials) *Users {
	if len(creds) == 0 {
		panic("config: empty user pool")
	}
	return &Users{list: creds}
}

// DefaultUsersPath returns data/users.<env>.yaml, or the .json variant when
// only that one exists.
func DefaultUsersPath(env string) string {
	base := filepath.Join("data", "users."+env)
	if _, err := os.Stat(base + ".yaml"); err != nil {
		if _, err := os.Stat(base + ".json"); err == nil {
			return base + ".json"
		}
	}
	return base + ".yaml"
}

// LoadUsers reads a users file ({"users": [{email, password, app_id}]})
// and keeps the entries of appID. Entries without app_id belong to every
// application and get appID assigned.
func LoadUsers(path string, appID int) (*Users, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.ConfigError{Path: path, Key: "users", Err: err}
	}

	var f usersFile
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, &internal.ConfigError{Path: path, Key: "users", Err: err}
	}

	var kept []auth.Credentials
	for i, u := range f.Users {
		if u.Email == "" || u.Password == "" {
			return nil, &internal.ConfigError{Path: path, Key: "users", Err: fmt.Errorf("entry %d: email and password are required", i+1)}
		}
		if u.AppID == 0 {
			u.AppID = appID
		}
		if u.AppID == appID {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		return nil, &internal.ConfigError{Path: path, Key: "users", Err: fmt.Errorf("%w %d", ErrNoUsers, appID)}
	}
	internal.LogDebug("Loaded %d of %d users from %s for app %d", len(kept), len(f.Users), path, appID)
	return &Users{list: kept}, nil
}

// Len returns the pool size.
func (u *Users) Len() int {
	return len(u.list)
}

// ForVU picks the credentials of VU vuID (1-based) round-robin:
// index (vuID-1) mod Len.
func (u *Users) ForVU(vuID int) auth.Credentials {
	n := len(u.list)
	idx := (vuID - 1) % n
	if idx < 0 {
		idx += n
	}
	return u.list[idx]
}
