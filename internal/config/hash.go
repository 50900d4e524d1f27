package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name written next to the config file.
const ChecksumFile = ".checksums"

// ErrNoChecksums is returned when a directory has no manifest.
var ErrNoChecksums = errors.New("checksums file not found")

// ChecksumManifest records the expected BLAKE3 hash of each config file in
// a directory, keyed by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport captures checksum generation details for a config file.
type LockReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Files        []LockedFile
}

// LockedFile is one hashed file in a LockReport.
type LockedFile struct {
	Filename string
	Hash     string
	Changed  bool
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}
	return nil
}

// GenerateChecksums hashes the config file and records it in the .checksums
// manifest of its directory, preserving entries for other files. When
// dryRun is true nothing is written.
func GenerateChecksums(configPath string, dryRun bool) (*LockReport, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)

	manifest, err := LoadChecksums(dir)
	if err != nil {
		if !errors.Is(err, ErrNoChecksums) {
			return nil, err
		}
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	name := filepath.Base(absPath)
	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", name, err)
	}
	changed := manifest.Hashes[name] != hash
	manifest.Hashes[name] = hash

	report := &LockReport{
		ConfigDir:    dir,
		ChecksumPath: filepath.Join(dir, ChecksumFile),
	}
	names := make([]string, 0, len(manifest.Hashes))
	for n := range manifest.Hashes {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		report.Files = append(report.Files, LockedFile{
			Filename: n,
			Hash:     manifest.Hashes[n],
			Changed:  n == name && changed,
		})
	}

	if dryRun {
		return report, nil
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, ChecksumFile)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w in %s (run 'sigslot config lock')", ErrNoChecksums, configDir)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyChecksums verifies the config file against its manifest. Unlike
// Load, a missing manifest is an error.
func VerifyChecksums(configPath string) error {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return err
	}
	if _, err := LoadChecksums(filepath.Dir(absPath)); err != nil {
		return err
	}
	return verifyConfigHash(absPath)
}
