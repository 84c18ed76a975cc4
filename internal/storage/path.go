package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

var extensionPattern = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

// BuildAvatarPath returns the key of a user's avatar, replacing any earlier
// upload with the same extension.
func BuildAvatarPath(userID, filename string) (string, error) {
	if err := validatePathComponent(userID, "user id"); err != nil {
		return "", err
	}
	ext, err := fileExtension(filename)
	if err != nil {
		return "", err
	}
	return path.Join(userID, "avatar."+ext), nil
}

// BuildObjectPath returns a unique key under folder/owner for an uploaded file,
// e.g. facilities/<facility id>/20260102T150405.000000000Z.jpg.
func BuildObjectPath(folder, owner, filename string, at time.Time) (string, error) {
	if err := validatePathComponent(folder, "folder"); err != nil {
		return "", err
	}
	if err := validatePathComponent(owner, "owner"); err != nil {
		return "", err
	}
	ext, err := fileExtension(filename)
	if err != nil {
		return "", err
	}
	stamp := at.UTC().Format("20060102T150405.000000000Z")
	return path.Join(folder, owner, stamp+"."+ext), nil
}

func fileExtension(filename string) (string, error) {
	i := strings.LastIndex(filename, ".")
	if i < 0 || i == len(filename)-1 {
		return "", fmt.Errorf("file name %q has no extension", filename)
	}
	ext := strings.ToLower(filename[i+1:])
	if !extensionPattern.MatchString(ext) {
		return "", fmt.Errorf("invalid file extension: %q", ext)
	}
	return ext, nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
