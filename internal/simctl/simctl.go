// Package simctl drives the simulator lifecycle through `xcrun simctl`.
package simctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/simstream/internal/logging"
	"github.com/smazurov/simstream/internal/process"
)

const (
	defaultXcrun   = "xcrun"
	plistBuddy     = "/usr/libexec/PlistBuddy"
	commandTimeout = 2 * time.Minute
	shotTimeout    = 10 * time.Second

	StateBooted      = "Booted"
	stateUnavailable = "Unavailable"
)

var (
	// ErrNotInstalled is returned when xcrun itself cannot be run.
	ErrNotInstalled = errors.New("xcrun not installed")
	// ErrInvalidUDID is returned by ValidateUDID.
	ErrInvalidUDID = errors.New("invalid simulator udid")
)

// ValidateUDID accepts a UDID only in the hyphenated 36 character form
// simctl prints.
func ValidateUDID(udid string) error {
	id, err := uuid.Parse(udid)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidUDID, udid, err)
	}
	if !strings.EqualFold(id.String(), udid) {
		return fmt.Errorf("%w %q: not in canonical form", ErrInvalidUDID, udid)
	}
	return nil
}

// Runner runs a command to completion and returns its stdout.
type Runner func(ctx context.Context, timeout time.Duration, path string, args ...string) ([]byte, error)

// Simulator is one entry of `simctl list devices`.
type Simulator struct {
	UDID    string `json:"udid"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Runtime string `json:"runtime"`
}

// Client runs simctl commands.
type Client struct {
	xcrun  string
	run    Runner
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(c *Client) { c.run = r }
}

// New returns a client invoking xcrun at path, or from PATH when empty.
func New(path string, opts ...Option) *Client {
	if path == "" {
		path = defaultXcrun
	}
	c := &Client{
		xcrun:  path,
		run:    process.Output,
		logger: logging.GetLogger("simctl"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) simctl(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	out, err := c.run(ctx, timeout, c.xcrun, append([]string{"simctl"}, args...)...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrNotInstalled, err)
		}
		return out, err
	}
	return out, nil
}

// List returns available simulators, booted ones first, then by name.
func (c *Client) List(ctx context.Context) ([]Simulator, error) {
	out, err := c.simctl(ctx, commandTimeout, "list", "devices", "-j")
	if err != nil {
		return nil, fmt.Errorf("list simulators: %w", err)
	}
	sims, err := parseDeviceList(out)
	if err != nil {
		return nil, fmt.Errorf("parse simctl output: %w", err)
	}
	return sims, nil
}

func parseDeviceList(data []byte) ([]Simulator, error) {
	var payload struct {
		Devices map[string][]struct {
			UDID  string `json:"udid"`
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	var sims []Simulator
	for runtime, devices := range payload.Devices {
		for _, d := range devices {
			if d.UDID == "" || d.State == stateUnavailable {
				continue
			}
			sims = append(sims, Simulator{UDID: d.UDID, Name: d.Name, State: d.State, Runtime: runtime})
		}
	}

	sort.SliceStable(sims, func(i, j int) bool {
		bi, bj := sims[i].State == StateBooted, sims[j].State == StateBooted
		if bi != bj {
			return bi
		}
		if sims[i].Name != sims[j].Name {
			return sims[i].Name < sims[j].Name
		}
		return sims[i].UDID < sims[j].UDID
	})
	return sims, nil
}

// Boot boots udid. A simulator that is already booted is not an error.
func (c *Client) Boot(ctx context.Context, udid string) error {
	_, err := c.simctl(ctx, commandTimeout, "boot", udid)
	if err == nil {
		return nil
	}
	var exitErr *process.ExitError
	if errors.As(err, &exitErr) && strings.Contains(exitErr.Stderr, "current state: Booted") {
		c.logger.Debug("Simulator already booted", "udid", udid)
		return nil
	}
	return fmt.Errorf("boot %s: %w", udid, err)
}

// Install installs the app bundle at appPath.
func (c *Client) Install(ctx context.Context, udid, appPath string) error {
	if _, err := c.simctl(ctx, commandTimeout, "install", udid, appPath); err != nil {
		return fmt.Errorf("install %s: %w", appPath, err)
	}
	return nil
}

// Launch starts bundleID on udid.
func (c *Client) Launch(ctx context.Context, udid, bundleID string) error {
	if _, err := c.simctl(ctx, commandTimeout, "launch", udid, bundleID); err != nil {
		return fmt.Errorf("launch %s: %w", bundleID, err)
	}
	return nil
}

// Screenshot returns a JPEG of the simulator screen.
func (c *Client) Screenshot(ctx context.Context, udid string) ([]byte, error) {
	out, err := c.simctl(ctx, shotTimeout, "io", udid, "screenshot", "--type=jpeg", "-")
	if err != nil {
		return nil, fmt.Errorf("screenshot %s: %w", udid, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("screenshot %s: empty output", udid)
	}
	return out, nil
}

// BundleID reads CFBundleIdentifier from the app bundle's Info.plist.
func (c *Client) BundleID(ctx context.Context, appPath string) (string, error) {
	plist := filepath.Join(appPath, "Info.plist")
	out, err := c.run(ctx, commandTimeout, plistBuddy, "-c", "Print :CFBundleIdentifier", plist)
	if err != nil {
		return "", fmt.Errorf("read bundle id: %w", err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("read bundle id: empty CFBundleIdentifier in %s", plist)
	}
	return id, nil
}

// InstallAndLaunch boots udid, installs appPath and launches it. When
// bundleID is empty it is read from the bundle. It returns the bundle id
// that was launched.
func (c *Client) InstallAndLaunch(ctx context.Context, udid, appPath, bundleID string) (string, error) {
	c.logger.Info("Booting simulator", "udid", udid)
	if err := c.Boot(ctx, udid); err != nil {
		return "", err
	}

	c.logger.Info("Installing app", "udid", udid, "app", appPath)
	if err := c.Install(ctx, udid, appPath); err != nil {
		return "", err
	}

	if bundleID == "" {
		id, err := c.BundleID(ctx, appPath)
		if err != nil {
			return "", err
		}
		bundleID = id
	}

	c.logger.Info("Launching app", "udid", udid, "bundle_id", bundleID)
	if err := c.Launch(ctx, udid, bundleID); err != nil {
		return "", err
	}
	return bundleID, nil
}
