package storagestate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"github.com/spf13/afero"

	"github.com/kuitang/mango3-e2e/internal/errs"
	"github.com/kuitang/mango3-e2e/internal/obs"
)

// Well-known session roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ErrNoSession is returned by Read when nothing was written for a key. A
// consumer seeing it was scheduled before its producer.
var ErrNoSession = errors.New("storagestate: no prior session found")

var keyPart = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Key identifies one session file: the suite that produced it and the role
// of the account it belongs to.
type Key struct {
	Suite string
	Role  string
}

func (k Key) String() string {
	return k.Suite + "/" + k.Role
}

// Validate rejects keys that would escape the state directory.
func (k Key) Validate() error {
	if !keyPart.MatchString(k.Suite) || !keyPart.MatchString(k.Role) {
		return errs.New(errs.InvalidArgument, fmt.Sprintf("invalid storage-state key %q", k.String()))
	}
	return nil
}

// Store reads and writes session files under a directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// NewStore returns a store rooted at dir on fs.
func NewStore(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// NewOSStore returns a store on the real filesystem.
func NewOSStore(dir string) *Store {
	return NewStore(afero.NewOsFs(), dir)
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

// PathFor returns the file that holds key: <dir>/<suite>/<role>.json.
func (s *Store) PathFor(key Key) string {
	return filepath.Join(s.dir, key.Suite, key.Role+".json")
}

// Write replaces the file for key with state. The previous content is never
// merged or appended to.
func (s *Store) Write(key Key, state *State) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := state.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, "marshal storage state", err)
	}

	path := s.PathFor(key)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("create %s", filepath.Dir(path)), err)
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("write %s", tmp), err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("rename %s", path), err)
	}

	obs.Pkg("storagestate").Info("storage_state_written",
		"key", key.String(),
		"path", path,
		"cookies", len(state.Cookies),
		"origins", len(state.Origins),
	)
	return nil
}

// Capture serializes a live browser context and writes it under key.
func (s *Store) Capture(key Key, bctx playwright.BrowserContext) (*State, error) {
	ps, err := bctx.StorageState()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "capture browser storage state", err)
	}
	state := FromPlaywright(ps)
	if err := s.Write(key, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Read returns a snapshot of the state stored under key. A key that was
// never written yields an error wrapping ErrNoSession.
func (s *Store) Read(key Key) (*State, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	path := s.PathFor(key)
	state, err := LoadFile(s.fs, path)
	if errors.Is(err, ErrNoSession) {
		return nil, errs.Wrap(errs.FailedPrecondition,
			fmt.Sprintf("no prior session found for %s at %s; the step that writes it must run first", key, path),
			ErrNoSession)
	}
	return state, err
}

// Remove deletes the file for key. Removing a missing key is not an error.
func (s *Store) Remove(key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return RemoveFile(s.fs, s.PathFor(key))
}

// LoadFile reads and validates a storage-state file at an arbitrary path.
func LoadFile(fs afero.Fs, path string) (*State, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.FailedPrecondition, fmt.Sprintf("no prior session found at %s", path), ErrNoSession)
		}
		return nil, errs.Wrap(errs.Unavailable, fmt.Sprintf("read %s", path), err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(errs.FailedPrecondition, fmt.Sprintf("%s is not a storage-state file", path), err)
	}
	if err := state.Validate(); err != nil {
		return nil, errs.Wrap(errs.FailedPrecondition, fmt.Sprintf("%s holds an invalid storage state", path), err)
	}
	return &state, nil
}

// RemoveFile deletes a storage-state file. A missing file is not an error.
func RemoveFile(fs afero.Fs, path string) error {
	if err := fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Unavailable, fmt.Sprintf("remove %s", path), err)
	}
	return nil
}
