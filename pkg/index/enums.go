package index

import (
	"fmt"
	"strings"
)

// ArchiveType is the canonical archive-type enumeration carried on
// JOB_START/INDEX_NEW_ENTITY (spec §4.7).
type ArchiveType int

const (
	ArchiveNormal ArchiveType = iota
	ArchiveFull
	ArchiveIncremental
	ArchiveDifferential
	ArchiveContinuous
)

func (a ArchiveType) String() string {
	switch a {
	case ArchiveNormal:
		return "NORMAL"
	case ArchiveFull:
		return "FULL"
	case ArchiveIncremental:
		return "INCREMENTAL"
	case ArchiveDifferential:
		return "DIFFERENTIAL"
	case ArchiveContinuous:
		return "CONTINUOUS"
	default:
		return "NORMAL"
	}
}

// ParseArchiveType parses the canonical uppercase name used on the wire.
func ParseArchiveType(s string) (ArchiveType, error) {
	switch strings.ToUpper(s) {
	case "NORMAL":
		return ArchiveNormal, nil
	case "FULL":
		return ArchiveFull, nil
	case "INCREMENTAL":
		return ArchiveIncremental, nil
	case "DIFFERENTIAL":
		return ArchiveDifferential, nil
	case "CONTINUOUS":
		return ArchiveContinuous, nil
	default:
		return 0, fmt.Errorf("index: unknown archiveType %q", s)
	}
}

// IndexState is the canonical index-entry state enumeration.
type IndexState int

const (
	IndexStateNone IndexState = iota
	IndexStateOK
	IndexStateCreate
	IndexStateUpdateRequested
	IndexStateUpdate
	IndexStateError
)

func (s IndexState) String() string {
	switch s {
	case IndexStateNone:
		return "NONE"
	case IndexStateOK:
		return "OK"
	case IndexStateCreate:
		return "CREATE"
	case IndexStateUpdateRequested:
		return "UPDATE_REQUESTED"
	case IndexStateUpdate:
		return "UPDATE"
	case IndexStateError:
		return "ERROR"
	default:
		return "NONE"
	}
}

// ParseIndexState parses the canonical uppercase name used on the wire.
func ParseIndexState(s string) (IndexState, error) {
	switch strings.ToUpper(s) {
	case "NONE":
		return IndexStateNone, nil
	case "OK":
		return IndexStateOK, nil
	case "CREATE":
		return IndexStateCreate, nil
	case "UPDATE_REQUESTED":
		return IndexStateUpdateRequested, nil
	case "UPDATE":
		return IndexStateUpdate, nil
	case "ERROR":
		return IndexStateError, nil
	default:
		return 0, fmt.Errorf("index: unknown indexState %q", s)
	}
}

// IndexMode distinguishes manually vs automatically created index entries.
type IndexMode int

const (
	IndexModeManual IndexMode = iota
	IndexModeAuto
)

func (m IndexMode) String() string {
	if m == IndexModeAuto {
		return "AUTO"
	}
	return "MANUAL"
}

// ParseIndexMode parses the canonical uppercase name used on the wire.
func ParseIndexMode(s string) (IndexMode, error) {
	switch strings.ToUpper(s) {
	case "MANUAL":
		return IndexModeManual, nil
	case "AUTO":
		return IndexModeAuto, nil
	default:
		return 0, fmt.Errorf("index: unknown indexMode %q", s)
	}
}

// SpecialType names the kind of special file recorded by INDEX_ADD_SPECIAL.
type SpecialType int

const (
	SpecialCharacterDevice SpecialType = iota
	SpecialBlockDevice
	SpecialFIFO
	SpecialSocket
	SpecialOther
)

func (t SpecialType) String() string {
	switch t {
	case SpecialCharacterDevice:
		return "CHARACTER_DEVICE"
	case SpecialBlockDevice:
		return "BLOCK_DEVICE"
	case SpecialFIFO:
		return "FIFO"
	case SpecialSocket:
		return "SOCKET"
	default:
		return "OTHER"
	}
}

// ParseSpecialType parses the canonical uppercase name used on the wire.
func ParseSpecialType(s string) (SpecialType, error) {
	switch strings.ToUpper(s) {
	case "CHARACTER_DEVICE":
		return SpecialCharacterDevice, nil
	case "BLOCK_DEVICE":
		return SpecialBlockDevice, nil
	case "FIFO":
		return SpecialFIFO, nil
	case "SOCKET":
		return SpecialSocket, nil
	case "OTHER":
		return SpecialOther, nil
	default:
		return 0, fmt.Errorf("index: unknown specialType %q", s)
	}
}
