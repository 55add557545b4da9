package state

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
)

// InitializableCheck asserts the state of an OpenZeppelin Initializable contract
type InitializableCheck struct {
	// Version is the OpenZeppelin contracts version, e.g. "5.0.2" or "v4.9.3"
	Version string `json:"version" yaml:"version" toml:"version"`
	// Initialized is the expected _initialized counter
	Initialized uint64 `json:"initialized" yaml:"initialized" toml:"initialized"`
}

// InitializableLayoutFor picks the storage layout used by an OpenZeppelin release
func InitializableLayoutFor(version string) (evm.InitializableLayout, error) {
	v := version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return evm.InitializableLayout{}, fmt.Errorf("invalid OpenZeppelin version %q", version)
	}
	switch major := semver.Major(v); {
	case semver.Compare(major, "v5") >= 0:
		return evm.OZInitializableV5, nil
	case major == "v4":
		return evm.OZInitializableV4, nil
	}
	return evm.InitializableLayout{}, fmt.Errorf("unsupported OpenZeppelin version %q", version)
}

// InitializableSlots expands an InitializableCheck into slot checks: the
// _initialized counter matches and _initializing is false
func InitializableSlots(check InitializableCheck) ([]SlotCheck, error) {
	layout, err := InitializableLayoutFor(check.Version)
	if err != nil {
		return nil, err
	}
	slot := layout.Slot.Hex()
	return []SlotCheck{
		{
			Slot:     slot,
			Type:     layout.InitializedType,
			Name:     "_initialized",
			Offset:   layout.InitializedByteOffset,
			Expected: fmt.Sprintf("%d", check.Initialized),
		},
		{
			Slot:     slot,
			Type:     "bool",
			Name:     "_initializing",
			Offset:   layout.InitializingByteOffset,
			Expected: false,
		},
	}, nil
}
