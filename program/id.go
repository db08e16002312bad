package program

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gdaytreva/protocol"
)

// MaxPrograms is the number of fixed program slots on the controller
const MaxPrograms = 10

// ErrInvalidID is returned for identifiers outside 01..10
var ErrInvalidID = errors.New("invalid program id")

// ID is a two-digit program slot identifier, "01" to "10"
type ID string

// ParseID normalizes "3", "03" or " 3 " into "03"
func ParseID(s string) (ID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > MaxPrograms {
		return "", fmt.Errorf("%w: %q (must be 1 to %d)", ErrInvalidID, s, MaxPrograms)
	}
	return ID(fmt.Sprintf("%02d", n)), nil
}

// IDFromWire normalizes an identifier as sent by the controller
func IDFromWire(f protocol.FlexibleID) (ID, error) {
	return ParseID(string(f))
}

// AllIDs returns every slot identifier in order
func AllIDs() []ID {
	ids := make([]ID, 0, MaxPrograms)
	for i := 1; i <= MaxPrograms; i++ {
		ids = append(ids, ID(fmt.Sprintf("%02d", i)))
	}
	return ids
}

func (id ID) String() string {
	return string(id)
}
