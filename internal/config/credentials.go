// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"

	ffErrors "github.com/rackforge/factoryflow/internal/errors"
	"github.com/rackforge/factoryflow/pkg/flow"
)

const keyringPrefix = "keyring:"

// ResolveCredentials rewrites every connection.<type>.<id>.user/password
// field that names a keyring:<service>/<account> reference with the
// secret the OS credential store holds for it. A connection entry left
// with an empty password and no keyring reference is prompted for
// interactively (hidden input) rather than treated as an empty password,
// unless stdin is not a terminal, in which case it is left empty and the
// Flow Loader's own validation decides whether that's acceptable.
//
// Resolution failure is reported as a ValidationError, the same kind the
// Flow Loader uses for every other load-time failure (spec.md §3
// EXPANSION): a missing keyring entry is no different in kind from a
// dangling jump target.
func ResolveCredentials(cfg *flow.Configuration) error {
	for deviceType, devices := range cfg.Connection {
		for id, desc := range devices {
			resolvedUser, err := resolveField(deviceType, id, "user", desc.User)
			if err != nil {
				return err
			}
			resolvedPassword, err := resolveField(deviceType, id, "password", desc.Password)
			if err != nil {
				return err
			}
			if resolvedPassword == "" && desc.Password == "" {
				resolvedPassword, err = promptForPassword(deviceType, id)
				if err != nil {
					return err
				}
			}

			desc.User = resolvedUser
			desc.Password = resolvedPassword
			devices[id] = desc
		}
	}
	return nil
}

// resolveField resolves one user/password scalar. Values that don't carry
// the keyring: prefix pass through unchanged.
func resolveField(deviceType flow.DeviceType, id, field, value string) (string, error) {
	if !strings.HasPrefix(value, keyringPrefix) {
		return value, nil
	}

	ref := strings.TrimPrefix(value, keyringPrefix)
	service, account, ok := strings.Cut(ref, "/")
	if !ok {
		return "", &ffErrors.ValidationError{
			Path:    fmt.Sprintf("connection.%s.%s.%s", deviceType, id, field),
			Message: fmt.Sprintf("keyring reference %q must be of the form service/account", ref),
		}
	}

	secret, err := keyring.Get(service, account)
	if err != nil {
		reason := "keyring lookup failed"
		if errors.Is(err, keyring.ErrNotFound) {
			reason = "no matching keyring entry"
		}
		return "", &ffErrors.ValidationError{
			Path:    fmt.Sprintf("connection.%s.%s.%s", deviceType, id, field),
			Message: fmt.Sprintf("%s: service=%q account=%q: %v", reason, service, account, err),
		}
	}
	return secret, nil
}

// promptForPassword reads a hidden password from the controlling terminal,
// the same term.ReadPassword pattern the teacher's secrets command uses.
// Returns an empty string without prompting when stdin isn't a terminal
// (a piped or scripted invocation), leaving downstream validation to
// reject a missing credential rather than block on a read that will
// never complete.
func promptForPassword(deviceType flow.DeviceType, id string) (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", nil
	}

	fmt.Fprintf(os.Stderr, "Password for %s/%s: ", deviceType, id)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", &ffErrors.ConfigError{Key: fmt.Sprintf("connection.%s.%s.password", deviceType, id), Reason: "reading password from terminal", Cause: err}
	}
	return string(bytePassword), nil
}
