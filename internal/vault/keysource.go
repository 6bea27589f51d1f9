package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"consentry/pkg/secrets"
)

// KeySource yields the vault's own encryption key. Resolve tries sources in
// order and the first one that produces a key wins.
type KeySource interface {
	// Name identifies the source in logs.
	Name() string
	// Key returns the key bytes, or (nil, nil) when this source has nothing.
	Key(ctx context.Context) ([]byte, error)
}

// Resolve walks the chain and returns the first available key along with the
// name of the source that produced it.
func Resolve(ctx context.Context, sources ...KeySource) ([]byte, string, error) {
	for _, src := range sources {
		key, err := src.Key(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("key source %s: %w", src.Name(), err)
		}
		if key != nil {
			return key, src.Name(), nil
		}
	}
	return nil, "", fmt.Errorf("no vault key available from any source")
}

// DefaultChain is the production resolution order: environment variable,
// remote secret manager, orchestrator-mounted file, OS-protected file, and
// finally a project-local dev fallback that generates a key on first use.
func DefaultChain(envVar string, manager SecretManager, mountedPath, systemPath, devPath string, logger *slog.Logger) []KeySource {
	return []KeySource{
		EnvSource{Var: envVar},
		ManagerSource{Manager: manager},
		FileSource{Path: mountedPath},
		FileSource{Path: systemPath},
		DevFileSource{Path: devPath, Logger: logger},
	}
}

// EnvSource reads a base64-encoded key from an environment variable.
type EnvSource struct {
	Var string
}

func (s EnvSource) Name() string { return "env:" + s.Var }

func (s EnvSource) Key(context.Context) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(s.Var))
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return key, nil
}

// SecretManager is the extension point for remote secret managers. Integrators
// provide an implementation; the core only needs the key bytes.
type SecretManager interface {
	FetchKey(ctx context.Context) ([]byte, error)
}

// ManagerSource adapts a SecretManager into the chain. A nil manager is simply
// skipped.
type ManagerSource struct {
	Manager SecretManager
}

func (s ManagerSource) Name() string { return "secret-manager" }

func (s ManagerSource) Key(ctx context.Context) ([]byte, error) {
	if s.Manager == nil {
		return nil, nil
	}
	return s.Manager.FetchKey(ctx)
}

// FileSource reads raw key bytes from a file path, e.g. an orchestrator-
// injected mount or an OS-protected location. A missing file means
// "not available", any other read failure is an error.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Key(context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, nil
	}
	key, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// DevFileSource generates and persists a key on first use. Development only:
// a generated key means previously written vault files become unreadable, so
// it logs loudly when it triggers.
type DevFileSource struct {
	Path   string
	Logger *slog.Logger
}

func (s DevFileSource) Name() string { return "dev-file:" + s.Path }

func (s DevFileSource) Key(context.Context) ([]byte, error) {
	if s.Path == "" {
		return nil, nil
	}
	key, err := os.ReadFile(s.Path)
	if err == nil {
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	generated, err := secrets.Generate()
	if err != nil {
		return nil, err
	}
	key = []byte(generated)[:32]
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.Path, key, 0o600); err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Warn("generated dev-only vault key; do not use in production",
			"path", s.Path,
		)
	}
	return key, nil
}
