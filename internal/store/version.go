package store

import "fmt"

// Version is a major.minor format stamp. Versions with the same major are compatible.
type Version struct {
	Major uint32 `yaml:"major" json:"major"`
	Minor uint32 `yaml:"minor" json:"minor"`
}

var (
	// StoreVersion is the layout version written by this build.
	StoreVersion = Version{Major: 2, Minor: 0}
	// PreviousVersion is the only layout Migrate upgrades from.
	PreviousVersion = Version{Major: 1, Minor: 0}
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether data written at v can be read by code at o.
func (v Version) Compatible(o Version) bool {
	return v.Major == o.Major
}

// Check returns a VersionMismatchError unless got is compatible with expected.
func Check(expected, got Version) error {
	if !got.Compatible(expected) {
		return &VersionMismatchError{Expected: expected, Got: got}
	}
	return nil
}
